package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

const defaultOperationTimeout = 30 * time.Second

// ChatHandler serves the chat workspace to the UI.
type ChatHandler struct {
	ws        *services.Workspace
	validate  *validator.Validate
	opTimeout time.Duration
	log       zerolog.Logger
}

// NewChatHandler creates the handler. Operations outlive a disconnected caller
// but are bounded by opTimeout.
func NewChatHandler(ws *services.Workspace, opTimeout time.Duration, logger zerolog.Logger) *ChatHandler {
	if opTimeout <= 0 {
		opTimeout = defaultOperationTimeout
	}
	return &ChatHandler{
		ws:        ws,
		validate:  validator.New(),
		opTimeout: opTimeout,
		log:       logger.With().Str("component", "http").Logger(),
	}
}

// opContext detaches from the request so a closed tab does not abort a send
// halfway through reconciliation.
func (h *ChatHandler) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.opTimeout)
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Health handles GET /health
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Clients: h.ws.Events.ClientCount()})
}

type CredentialRequest struct {
	Token string `json:"token" validate:"required"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PutCredential handles PUT /api/credential
func (h *ChatHandler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ws.Credentials.Set(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "credential stored"})
}

// DeleteCredential handles DELETE /api/credential
func (h *ChatHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Credentials.Clear(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ws.Session.Clear()
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "credential cleared"})
}

type ChatsResponse struct {
	Success bool          `json:"success"`
	Chats   []models.Chat `json:"chats"`
}

// ListChats handles GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.ws.Chats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatsResponse{Success: true, Chats: nonNilChats(chats)})
}

// RefreshChats handles POST /api/chats/refresh
func (h *ChatHandler) RefreshChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.ws.RefreshChats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatsResponse{Success: true, Chats: nonNilChats(chats)})
}

func nonNilChats(chats []models.Chat) []models.Chat {
	if chats == nil {
		return []models.Chat{}
	}
	return chats
}

type SessionResponse struct {
	Success bool                     `json:"success"`
	Session services.SessionSnapshot `json:"session"`
}

// respondSession writes the current session. A superseded operation is not an
// error: the caller simply sees the newer state.
func (h *ChatHandler) respondSession(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !errors.Is(err, services.ErrSuperseded) {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: h.ws.Session.Snapshot()})
}

// GetSession handles GET /api/session
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondSession(w, r, nil)
}

type SelectChatRequest struct {
	ChatID string `json:"chatId" validate:"required_without=UserID,excluded_with=UserID"`
	UserID string `json:"userId" validate:"required_without=ChatID"`
}

// SelectChat handles POST /api/session/select
// With chatId the chat is opened directly; with userId the direct chat with
// that user is opened, and created if it does not exist yet.
func (h *ChatHandler) SelectChat(w http.ResponseWriter, r *http.Request) {
	var req SelectChatRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.opContext(r)
	defer cancel()

	var err error
	if req.ChatID != "" {
		err = h.ws.Session.SelectChat(ctx, req.ChatID)
	} else {
		err = h.ws.Session.SelectCounterpart(ctx, req.UserID)
	}
	h.respondSession(w, r, err)
}

// ClearSession handles DELETE /api/session
func (h *ChatHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.ws.Session.Clear()
	h.respondSession(w, r, nil)
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type MessageResponse struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

// SendMessage handles POST /api/session/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.opContext(r)
	defer cancel()

	msg, err := h.ws.Session.Send(ctx, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Success: true, Message: msg})
}

// DeleteMessage handles DELETE /api/session/messages/{messageID}
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := models.MessageID(chi.URLParam(r, "messageID"))
	if id == "" {
		h.writeError(w, r, services.ErrMessageNotFound)
		return
	}
	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.ws.Session.DeleteMessage(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "message deleted"})
}

type TypingRequest struct {
	IsTyping *bool `json:"isTyping" validate:"required"`
}

// SetTyping handles POST /api/session/typing
func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ws.Session.SetTyping(*req.IsTyping); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ActionResponse{Success: true})
}

type AvatarResponse struct {
	Success   bool   `json:"success"`
	UserID    string `json:"userId"`
	AvatarURL string `json:"avatarUrl"`
}

// GetAvatar handles GET /api/avatars/{userID}
func (h *ChatHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	avatarURL, err := h.ws.Avatars.FetchIfAbsent(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvatarResponse{Success: true, UserID: userID, AvatarURL: avatarURL})
}
