package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

// multipartOverhead leaves room for the caption and part headers on top of the file.
const multipartOverhead = 1 << 20

// SendAttachment handles POST /api/session/attachments
// Form fields: file (required), content (optional caption).
// The file is uploaded first; the message is only created once the upload succeeds.
func (h *ChatHandler) SendAttachment(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.ws.Uploads.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, services.ErrFileTooLarge)
			return
		}
		h.writeError(w, r, backend.NewValidationError("failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, services.ErrEmptyAttachment)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	att := models.Attachment{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	msg, err := h.ws.Session.SendAttachment(ctx, strings.TrimSpace(r.FormValue("content")), att)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Success: true, Message: msg})
}
