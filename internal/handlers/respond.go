package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Kind    string            `json:"kind,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a chat error onto the HTTP status returned to the UI.
func statusFor(err error) int {
	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.KindAuth:
			return http.StatusUnauthorized
		case backend.KindValidation:
			return http.StatusBadRequest
		case backend.KindNotFound:
			return http.StatusNotFound
		case backend.KindTransport:
			return http.StatusBadGateway
		}
		if be.Status >= 400 && be.Status < 500 {
			return be.Status
		}
		return http.StatusBadGateway
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest
	}
	if errors.Is(err, services.ErrAttachmentReplaced) || errors.Is(err, services.ErrSuperseded) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Success: false, Message: backend.UserMessage(err)}
	if kind, ok := backend.KindOf(err); ok {
		resp.Kind = kind.String()
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Message = "invalid request"
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
		}
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		if status == http.StatusInternalServerError {
			resp.Message = http.StatusText(status)
		}
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and validates its struct tags.
func (h *ChatHandler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return backend.NewValidationError("invalid request body")
	}
	return h.validate.Struct(dst)
}
