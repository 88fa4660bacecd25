package models

import (
	"io"
	"strings"
)

// UploadStatus is the lifecycle state of an attachment upload.
type UploadStatus string

const (
	UploadPending   UploadStatus = "PENDING"
	UploadUploading UploadStatus = "UPLOADING"
	UploadDone      UploadStatus = "DONE"
	UploadFailed    UploadStatus = "FAILED"
)

// Attachment is a file the user selected for sending.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Category infers the message type of the attachment from its MIME type.
func (a Attachment) Category() MessageType {
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(ct, "video/"):
		return MessageTypeVideo
	}
	return MessageTypeFile
}

// UploadTask tracks one attachment from selection until its send completes.
type UploadTask struct {
	ID              string       `json:"id"`
	FileName        string       `json:"fileName"`
	ChatID          string       `json:"chatId"`
	Category        MessageType  `json:"category"`
	ProgressPercent int          `json:"progressPercent"`
	Status          UploadStatus `json:"status"`
}

// UploadResult is what a finished upload resolves to.
type UploadResult struct {
	FileURL  string      `json:"fileUrl"`
	Category MessageType `json:"category"`
}
