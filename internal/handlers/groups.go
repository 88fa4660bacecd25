package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

type GroupViewResponse struct {
	Success         bool                     `json:"success"`
	ViewOpen        bool                     `json:"viewOpen"`
	DissolvePending bool                     `json:"dissolvePending"`
	Selection       []string                 `json:"selection"`
	Session         services.SessionSnapshot `json:"session"`
}

func (h *ChatHandler) respondGroup(w http.ResponseWriter, status int) {
	g := h.ws.Groups
	writeJSON(w, status, GroupViewResponse{
		Success:         true,
		ViewOpen:        g.ViewOpen(),
		DissolvePending: g.DissolvePending(),
		Selection:       g.Selection(),
		Session:         h.ws.Session.Snapshot(),
	})
}

// OpenGroupView handles POST /api/session/group/view
func (h *ChatHandler) OpenGroupView(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Groups.OpenView(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

// CloseGroupView handles DELETE /api/session/group/view
func (h *ChatHandler) CloseGroupView(w http.ResponseWriter, r *http.Request) {
	h.ws.Groups.CloseView()
	h.respondGroup(w, http.StatusOK)
}

type CandidatesResponse struct {
	Success bool                     `json:"success"`
	Users   []models.ChatParticipant `json:"users"`
}

// GroupCandidates handles GET /api/session/group/candidates
// Query params:
//   - role: STUDENT, INSTRUCTOR or ADMIN (optional)
//   - q: name filter (optional)
func (h *ChatHandler) GroupCandidates(w http.ResponseWriter, r *http.Request) {
	filter := services.CandidateFilter{
		Role:  models.Role(r.URL.Query().Get("role")),
		Query: r.URL.Query().Get("q"),
	}
	users, err := h.ws.Groups.Candidates(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Success: true, Users: users})
}

type RenameGroupRequest struct {
	Name string `json:"name"`
}

// RenameGroup handles PUT /api/session/group/name
// A blank or unchanged name is accepted and ignored.
func (h *ChatHandler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	var req RenameGroupRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.ws.Groups.Rename(ctx, req.Name); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

type SelectionRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ToggleGroupSelection handles POST /api/session/group/selection
func (h *ChatHandler) ToggleGroupSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ws.Groups.ToggleSelection(req.UserID)
	h.respondGroup(w, http.StatusOK)
}

// AddGroupParticipants handles POST /api/session/group/participants
// An empty userIds list falls back to the pending selection.
func (h *ChatHandler) AddGroupParticipants(w http.ResponseWriter, r *http.Request) {
	var req models.AddParticipantsRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := req.UserIDs
	if len(ids) == 0 {
		ids = h.ws.Groups.Selection()
	}
	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.ws.Groups.AddParticipants(ctx, ids); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

// RemoveGroupParticipant handles DELETE /api/session/group/participants/{userID}?confirm=true
func (h *ChatHandler) RemoveGroupParticipant(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	ctx, cancel := h.opContext(r)
	defer cancel()

	err := h.ws.Groups.RemoveParticipant(ctx, userID, func(prompt string) bool {
		h.log.Debug().Str("prompt", prompt).Bool("confirmed", confirmed).Msg("participant removal confirmation")
		return confirmed
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

// RequestDissolve handles POST /api/session/group/dissolve
func (h *ChatHandler) RequestDissolve(w http.ResponseWriter, r *http.Request) {
	if err := h.ws.Groups.RequestDissolve(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

// ConfirmDissolve handles POST /api/session/group/dissolve/confirm
func (h *ChatHandler) ConfirmDissolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.ws.Groups.ConfirmDissolve(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondGroup(w, http.StatusOK)
}

// CancelDissolve handles DELETE /api/session/group/dissolve
func (h *ChatHandler) CancelDissolve(w http.ResponseWriter, r *http.Request) {
	h.ws.Groups.CancelDissolve()
	h.respondGroup(w, http.StatusOK)
}
