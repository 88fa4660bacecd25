package services

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// DefaultFileURLMaxLen is the longest file URL persisted as-is.
const DefaultFileURLMaxLen = 200

var (
	ErrEmptyMessage       = backend.NewValidationError("message is empty")
	ErrInvalidMessageType = backend.NewValidationError("unknown message type")
	ErrNoActiveChat       = backend.NewValidationError("no chat selected")
	ErrMessageNotFound    = backend.NewValidationError("message not found")
	// ErrSuperseded is returned by a history load whose result was discarded
	// because a newer load or chat selection started after it.
	ErrSuperseded = errors.New("superseded by a newer request")
)

// MessageAPI is the part of the backend the message store talks to.
type MessageAPI interface {
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	CreateMessage(ctx context.Context, chatID string, req models.SendMessageRequest) (models.Message, error)
	DeleteMessage(ctx context.Context, chatID string, messageID models.MessageID) error
}

// MessageStoreConfig holds the fixed parameters of a MessageStore.
type MessageStoreConfig struct {
	// UserID is the sender id stamped on pending messages.
	UserID string
	// FilesEndpoint is the base of shortened file URLs.
	FilesEndpoint string
	// MaxFileURLLen is the longest file URL sent unchanged.
	MaxFileURLLen int
}

// MessageStore holds the ordered messages of the active chat and reconciles
// optimistic sends against the backend.
type MessageStore struct {
	api      MessageAPI
	cfg      MessageStoreConfig
	now      func() time.Time
	log      zerolog.Logger
	onChange func(chatID string, entries []models.StoredMessage)

	mu        sync.Mutex
	chatID    string
	epoch     uint64 // bumped by Bind; sends resolved under another epoch are dropped
	loadSeq   uint64 // bumped by every history load; only the latest load may apply
	entries   []models.StoredMessage
	nextLocal models.LocalID
}

func NewMessageStore(api MessageAPI, cfg MessageStoreConfig, logger zerolog.Logger) *MessageStore {
	if cfg.MaxFileURLLen <= 0 {
		cfg.MaxFileURLLen = DefaultFileURLMaxLen
	}
	return &MessageStore{
		api: api,
		cfg: cfg,
		now: time.Now,
		log: logger.With().Str("component", "message_store").Logger(),
	}
}

// OnChange registers a callback run after every change, outside the store lock.
func (s *MessageStore) OnChange(fn func(chatID string, entries []models.StoredMessage)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Bind empties the store and attaches it to chatID. In-flight loads and sends of
// the previous binding no longer affect the store.
func (s *MessageStore) Bind(chatID string) {
	s.mu.Lock()
	s.bindLocked(chatID)
	s.mu.Unlock()
	s.notify()
}

func (s *MessageStore) bindLocked(chatID string) {
	s.chatID = chatID
	s.epoch++
	s.loadSeq++
	s.entries = nil
}

// ChatID returns the chat the store is bound to.
func (s *MessageStore) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Snapshot returns a copy of the current entries.
func (s *MessageStore) Snapshot() []models.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StoredMessage(nil), s.entries...)
}

// LoadHistory replaces the store's contents with the backend's history of chatID,
// in backend order. The store must be bound to chatID. A 404 is an empty history.
// On any other failure the store is unchanged. A load overtaken by a newer load or
// binding returns ErrSuperseded.
func (s *MessageStore) LoadHistory(ctx context.Context, chatID string) error {
	s.mu.Lock()
	if chatID == "" || s.chatID != chatID {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	msgs, err := s.api.ListMessages(ctx, chatID)
	if err != nil && !backend.IsNotFound(err) {
		s.mu.Lock()
		stale := s.loadSeq != seq
		s.mu.Unlock()
		if stale {
			return ErrSuperseded
		}
		return err
	}

	s.mu.Lock()
	if s.loadSeq != seq {
		s.mu.Unlock()
		return ErrSuperseded
	}
	entries := make([]models.StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ChatID == "" {
			m.ChatID = chatID
		}
		entries = append(entries, models.ResolvedMessage{Message: m})
	}
	// Sends still awaiting their response stay at the end.
	for _, e := range s.entries {
		if p, ok := e.(models.PendingMessage); ok {
			entries = append(entries, p)
		}
	}
	s.entries = entries
	s.mu.Unlock()

	s.notify()
	return nil
}

// Send appends a pending message, creates it on the backend and reconciles:
// on success the pending entry is replaced in place by the server's message, on
// failure it is removed and the error returned.
func (s *MessageStore) Send(ctx context.Context, content, fileURL string, messageType models.MessageType) (models.Message, error) {
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !messageType.Valid() {
		return models.Message{}, ErrInvalidMessageType
	}
	if strings.TrimSpace(content) == "" && fileURL == "" {
		return models.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.chatID == "" {
		s.mu.Unlock()
		return models.Message{}, ErrNoActiveChat
	}
	chatID := s.chatID
	fileURL = s.shortenFileURL(fileURL)
	s.nextLocal++
	localID := s.nextLocal
	now := s.now()
	s.entries = append(s.entries, models.PendingMessage{
		LocalID: localID,
		Draft: models.Message{
			ChatID:           chatID,
			SenderID:         s.cfg.UserID,
			Content:          content,
			MessageType:      messageType,
			FileURL:          fileURL,
			CreatedAt:        now,
			TimestampDisplay: now.Format("15:04"),
		},
	})
	s.mu.Unlock()
	s.notify()

	msg, err := s.api.CreateMessage(ctx, chatID, models.SendMessageRequest{
		Content:     content,
		MessageType: messageType,
		FileURL:     fileURL,
	})

	s.mu.Lock()
	idx := s.pendingIndex(localID)
	if err != nil {
		if idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
		s.mu.Unlock()
		s.notify()
		s.log.Warn().Err(err).Str("chat_id", chatID).Stringer("local_id", localID).Msg("send failed, pending message rolled back")
		return models.Message{}, err
	}
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	if idx >= 0 {
		s.entries[idx] = models.ResolvedMessage{Message: msg}
	}
	s.mu.Unlock()
	if idx >= 0 {
		s.notify()
	}
	return msg, nil
}

func (s *MessageStore) pendingIndex(id models.LocalID) int {
	for i, e := range s.entries {
		if p, ok := e.(models.PendingMessage); ok && p.LocalID == id {
			return i
		}
	}
	return -1
}

// Delete removes a resolved message on the backend, then locally. On failure the
// message stays.
func (s *MessageStore) Delete(ctx context.Context, messageID models.MessageID) error {
	s.mu.Lock()
	chatID, epoch := s.chatID, s.epoch
	found := s.resolvedIndex(messageID) >= 0
	s.mu.Unlock()
	if chatID == "" {
		return ErrNoActiveChat
	}
	if !found {
		return ErrMessageNotFound
	}

	if err := s.api.DeleteMessage(ctx, chatID, messageID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch == epoch {
		if idx := s.resolvedIndex(messageID); idx >= 0 {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessageStore) resolvedIndex(id models.MessageID) int {
	for i, e := range s.entries {
		if r, ok := e.(models.ResolvedMessage); ok && r.ID == id {
			return i
		}
	}
	return -1
}

// shortenFileURL rewrites URLs over the length limit to <files-endpoint>/<basename>.
func (s *MessageStore) shortenFileURL(raw string) string {
	if len(raw) <= s.cfg.MaxFileURLLen {
		return raw
	}
	return ShortFileURL(s.cfg.FilesEndpoint, raw)
}

// ShortFileURL returns the canonical short form of raw under filesEndpoint.
func ShortFileURL(filesEndpoint, raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		base = ""
	}
	return strings.TrimRight(filesEndpoint, "/") + "/" + base
}

func (s *MessageStore) notify() {
	s.mu.Lock()
	fn := s.onChange
	chatID := s.chatID
	entries := append([]models.StoredMessage(nil), s.entries...)
	s.mu.Unlock()
	if fn != nil {
		fn(chatID, entries)
	}
}
