package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", backend.ErrNoCredential, http.StatusUnauthorized},
		{"validation", services.ErrEmptyMessage, http.StatusBadRequest},
		{"not found", &backend.Error{Kind: backend.KindNotFound, Status: 404}, http.StatusNotFound},
		{"transport", &backend.Error{Kind: backend.KindTransport, Message: "upload timed out"}, http.StatusBadGateway},
		{"upstream 4xx passes through", &backend.Error{Kind: backend.KindServer, Status: 422}, http.StatusUnprocessableEntity},
		{"upstream 5xx", &backend.Error{Kind: backend.KindServer, Status: 503}, http.StatusBadGateway},
		{"wrapped", fmt.Errorf("send: %w", services.ErrNoActiveChat), http.StatusBadRequest},
		{"replaced attachment", services.ErrAttachmentReplaced, http.StatusConflict},
		{"superseded", services.ErrSuperseded, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	h := &ChatHandler{validate: validator.New(), log: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/api/session/messages", nil)

	t.Run("validation fields", func(t *testing.T) {
		err := h.validate.Struct(&SendMessageRequest{})
		rec := httptest.NewRecorder()
		h.writeError(rec, req, err)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid request", resp.Message)
		assert.Equal(t, map[string]string{"content": "required"}, resp.Fields)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeError(rec, req, errors.New("nil pointer in reconcile"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Internal Server Error", resp.Message)
		assert.Empty(t, resp.Kind)
	})

	t.Run("backend message and kind", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.writeError(rec, req, &backend.Error{Kind: backend.KindServer, Status: 400, Message: "content too long"})

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "content too long", resp.Message)
		assert.Equal(t, "server", resp.Kind)
	})
}
