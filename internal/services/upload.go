package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const (
	// DefaultMaxUploadBytes is the attachment size cap (20 MB).
	DefaultMaxUploadBytes int64 = 20 << 20
	// DefaultUploadTimeout bounds a single attachment upload.
	DefaultUploadTimeout = 30 * time.Second
)

var (
	ErrFileTooLarge        = backend.NewValidationError("file too large")
	ErrEmptyAttachment     = backend.NewValidationError("attachment has no content")
	ErrNoPendingAttachment = backend.NewValidationError("no attachment selected")
	ErrUploadInProgress    = backend.NewValidationError("attachment is already uploading")
	// ErrAttachmentReplaced is returned for an upload whose attachment was
	// replaced or discarded before it finished. Its result is dropped.
	ErrAttachmentReplaced = errors.New("attachment replaced by a newer selection")
)

// AttachmentUploader stores one attachment and returns its URL.
type AttachmentUploader interface {
	UploadAttachment(ctx context.Context, chatID string, att models.Attachment) (string, error)
}

type uploadSlot struct {
	task   models.UploadTask
	att    models.Attachment
	cancel context.CancelFunc
}

// UploadPipeline uploads the single pending attachment of a composer and reports progress.
type UploadPipeline struct {
	uploader   AttachmentUploader
	maxBytes   int64
	timeout    time.Duration
	onProgress func(models.UploadTask)
	log        zerolog.Logger

	mu      sync.Mutex
	pending *uploadSlot
}

// NewUploadPipeline creates a pipeline. Zero limits fall back to the defaults.
func NewUploadPipeline(uploader AttachmentUploader, maxBytes int64, timeout time.Duration, logger zerolog.Logger) *UploadPipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &UploadPipeline{
		uploader: uploader,
		maxBytes: maxBytes,
		timeout:  timeout,
		log:      logger.With().Str("component", "upload").Logger(),
	}
}

// MaxBytes returns the largest accepted attachment size.
func (p *UploadPipeline) MaxBytes() int64 { return p.maxBytes }

// OnProgress registers the progress callback. It is called without locks held.
func (p *UploadPipeline) OnProgress(fn func(models.UploadTask)) {
	p.mu.Lock()
	p.onProgress = fn
	p.mu.Unlock()
}

// Select makes att the pending attachment for chatID, discarding any earlier one.
// Oversized files are rejected before a task exists.
func (p *UploadPipeline) Select(chatID string, att models.Attachment) (models.UploadTask, error) {
	if att.Size > p.maxBytes {
		return models.UploadTask{}, ErrFileTooLarge
	}
	if att.Body == nil {
		return models.UploadTask{}, ErrEmptyAttachment
	}

	slot := &uploadSlot{
		task: models.UploadTask{
			ID:       uuid.NewString(),
			FileName: att.Name,
			ChatID:   chatID,
			Category: att.Category(),
			Status:   models.UploadPending,
		},
		att: att,
	}

	p.mu.Lock()
	if prev := p.pending; prev != nil && prev.cancel != nil {
		prev.cancel()
	}
	p.pending = slot
	p.mu.Unlock()

	p.emit(slot.task)
	return slot.task, nil
}

// Pending returns the pending task, if any.
func (p *UploadPipeline) Pending() (models.UploadTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return models.UploadTask{}, false
	}
	return p.pending.task, true
}

// Discard drops the pending attachment, cancelling its upload if one is running.
func (p *UploadPipeline) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil && p.pending.cancel != nil {
		p.pending.cancel()
	}
	p.pending = nil
}

// Upload uploads the pending attachment identified by taskID.
func (p *UploadPipeline) Upload(ctx context.Context, taskID string) (models.UploadResult, error) {
	p.mu.Lock()
	slot := p.pending
	switch {
	case slot == nil:
		p.mu.Unlock()
		return models.UploadResult{}, ErrNoPendingAttachment
	case slot.task.ID != taskID:
		p.mu.Unlock()
		return models.UploadResult{}, ErrAttachmentReplaced
	case slot.cancel != nil:
		p.mu.Unlock()
		return models.UploadResult{}, ErrUploadInProgress
	}
	uctx, cancel := context.WithTimeout(ctx, p.timeout)
	slot.cancel = cancel
	slot.task.Status = models.UploadUploading
	task := slot.task
	p.mu.Unlock()
	defer cancel()

	p.emit(task)

	att := slot.att
	att.Body = &progressReader{r: slot.att.Body, total: slot.att.Size, report: func(pct int) { p.advance(slot, pct) }}

	fileURL, err := p.uploader.UploadAttachment(uctx, task.ChatID, att)

	p.mu.Lock()
	if p.pending != slot {
		// Replaced or discarded mid-flight: close the task at its frozen progress.
		slot.task.Status = models.UploadFailed
		task = slot.task
		p.mu.Unlock()
		p.emit(task)
		return models.UploadResult{}, ErrAttachmentReplaced
	}
	p.pending = nil
	if err != nil {
		slot.task.Status = models.UploadFailed
	} else {
		slot.task.Status = models.UploadDone
		slot.task.ProgressPercent = 100
	}
	task = slot.task
	p.mu.Unlock()

	p.emit(task)

	if err != nil {
		if errors.Is(uctx.Err(), context.DeadlineExceeded) && !backend.IsTransport(err) {
			err = &backend.Error{Kind: backend.KindTransport, Message: "upload timed out", Err: err}
		}
		p.log.Warn().Err(err).Str("chat_id", task.ChatID).Str("file", task.FileName).Msg("attachment upload failed")
		return models.UploadResult{}, err
	}
	return models.UploadResult{FileURL: fileURL, Category: task.Category}, nil
}

// advance raises the slot's progress; it never goes down and stays below 100 until success.
func (p *UploadPipeline) advance(slot *uploadSlot, pct int) {
	pct = min(pct, 99)
	p.mu.Lock()
	if p.pending != slot || slot.task.Status != models.UploadUploading || pct <= slot.task.ProgressPercent {
		p.mu.Unlock()
		return
	}
	slot.task.ProgressPercent = pct
	task := slot.task
	p.mu.Unlock()
	p.emit(task)
}

func (p *UploadPipeline) emit(task models.UploadTask) {
	p.mu.Lock()
	fn := p.onProgress
	p.mu.Unlock()
	if fn != nil {
		fn(task)
	}
}

// progressReader reports the percentage of total read so far.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(int)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 && pr.total > 0 {
		pr.read += int64(n)
		pr.report(int(pr.read * 100 / pr.total))
	}
	return n, err
}
