package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

var (
	ErrNotGroupChat       = backend.NewValidationError("active chat is not a group")
	ErrEmptySelection     = backend.NewValidationError("select at least one user")
	ErrNotConfirmed       = backend.NewValidationError("action was not confirmed")
	ErrDissolveInProgress = backend.NewValidationError("group is already being dissolved")
)

// GroupAPI is the part of the backend the group manager talks to.
type GroupAPI interface {
	UpdateGroupInfo(ctx context.Context, chatID, groupName string) error
	AddParticipants(ctx context.Context, chatID string, userIDs []string) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error
	DissolveGroup(ctx context.Context, chatID string) error
	ListUsers(ctx context.Context) ([]models.ChatParticipant, error)
}

// GroupSession is what the group manager needs from the chat session controller.
type GroupSession interface {
	Active() *models.Chat
	Refresh(ctx context.Context) error
	Clear()
}

// Confirmation asks the user to confirm a destructive action.
type Confirmation func(prompt string) bool

// CandidateFilter narrows the users offered for adding to a group.
type CandidateFilter struct {
	Role  models.Role
	Query string
}

// GroupManager renames, extends, shrinks and dissolves the active group chat.
type GroupManager struct {
	api              GroupAPI
	session          GroupSession
	removeClosesView bool
	onMutated        func()
	log              zerolog.Logger

	mu            sync.Mutex
	viewOpen      bool
	selection     map[string]struct{}
	users         []models.ChatParticipant
	usersLoaded   bool
	dissolveArmed bool
	dissolving    bool
}

// NewGroupManager creates a manager. With removeClosesView set, a successful
// participant removal closes the management view instead of keeping it open.
func NewGroupManager(api GroupAPI, session GroupSession, removeClosesView bool, logger zerolog.Logger) *GroupManager {
	return &GroupManager{
		api:              api,
		session:          session,
		removeClosesView: removeClosesView,
		log:              logger.With().Str("component", "group").Logger(),
		selection:        make(map[string]struct{}),
	}
}

// OnMutated registers a hook run after every successful group change.
func (m *GroupManager) OnMutated(fn func()) {
	m.mu.Lock()
	m.onMutated = fn
	m.mu.Unlock()
}

func (m *GroupManager) activeGroup() (*models.Chat, error) {
	chat := m.session.Active()
	if chat == nil || chat.ChatID == "" {
		return nil, ErrNoActiveChat
	}
	if !chat.IsGroup() {
		return nil, ErrNotGroupChat
	}
	return chat, nil
}

// OpenView opens the management view of the active group with a clean state.
func (m *GroupManager) OpenView() error {
	if _, err := m.activeGroup(); err != nil {
		return err
	}
	m.mu.Lock()
	m.resetLocked()
	m.viewOpen = true
	m.mu.Unlock()
	return nil
}

// CloseView closes the management view and forgets its state.
func (m *GroupManager) CloseView() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

func (m *GroupManager) resetLocked() {
	m.viewOpen = false
	m.selection = make(map[string]struct{})
	m.users = nil
	m.usersLoaded = false
	m.dissolveArmed = false
}

// ViewOpen reports whether the management view is open.
func (m *GroupManager) ViewOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewOpen
}

// afterChange refreshes the session's chat metadata. Refresh failures do not undo
// a change the backend already accepted, so they are only logged.
func (m *GroupManager) afterChange(ctx context.Context) {
	if err := m.session.Refresh(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to refresh chat after group change")
	}
	m.mu.Lock()
	fn := m.onMutated
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Rename sets the group name. Blank names and the current name are no-ops.
func (m *GroupManager) Rename(ctx context.Context, newName string) error {
	chat, err := m.activeGroup()
	if err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" || newName == chat.GroupName {
		return nil
	}
	if err := m.api.UpdateGroupInfo(ctx, chat.ChatID, newName); err != nil {
		return err
	}
	m.log.Info().Str("chat_id", chat.ChatID).Str("group_name", newName).Msg("group renamed")
	m.afterChange(ctx)
	return nil
}

// ToggleSelection adds userID to the pending selection, or removes it if present.
func (m *GroupManager) ToggleSelection(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.selection[userID]; ok {
		delete(m.selection, userID)
		return
	}
	m.selection[userID] = struct{}{}
}

// Selection returns the pending selection in sorted order.
func (m *GroupManager) Selection() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.selection))
	for id := range m.selection {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AddParticipants adds userIDs to the group. An empty set is rejected without a request.
// On success the pending selection is cleared.
func (m *GroupManager) AddParticipants(ctx context.Context, userIDs []string) error {
	chat, err := m.activeGroup()
	if err != nil {
		return err
	}
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return ErrEmptySelection
	}
	if err := m.api.AddParticipants(ctx, chat.ChatID, ids); err != nil {
		return err
	}

	m.mu.Lock()
	m.selection = make(map[string]struct{})
	m.mu.Unlock()

	m.log.Info().Str("chat_id", chat.ChatID).Strs("user_ids", ids).Msg("participants added")
	m.afterChange(ctx)
	return nil
}

// RemoveParticipant removes userID from the group once confirm accepts.
func (m *GroupManager) RemoveParticipant(ctx context.Context, userID string, confirm Confirmation) error {
	chat, err := m.activeGroup()
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptySelection
	}
	name := userID
	for _, p := range chat.Participants {
		if p.UserID == userID {
			name = p.DisplayName()
			break
		}
	}
	if confirm == nil || !confirm(fmt.Sprintf("Remove %s from %s?", name, chat.GroupName)) {
		return ErrNotConfirmed
	}

	if err := m.api.RemoveParticipant(ctx, chat.ChatID, userID); err != nil {
		return err
	}
	m.log.Info().Str("chat_id", chat.ChatID).Str("user_id", userID).Msg("participant removed")
	m.afterChange(ctx)
	if m.removeClosesView {
		m.CloseView()
	}
	return nil
}

// RequestDissolve is the first step of dissolving: it opens the confirmation.
func (m *GroupManager) RequestDissolve() error {
	if _, err := m.activeGroup(); err != nil {
		return err
	}
	m.mu.Lock()
	m.dissolveArmed = true
	m.mu.Unlock()
	return nil
}

// CancelDissolve closes the confirmation without dissolving.
func (m *GroupManager) CancelDissolve() {
	m.mu.Lock()
	m.dissolveArmed = false
	m.mu.Unlock()
}

// DissolvePending reports whether the dissolve confirmation is open.
func (m *GroupManager) DissolvePending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dissolveArmed
}

// ConfirmDissolve is the second step: it deletes the group, closes the view and
// clears the active chat. It requires RequestDissolve first and issues at most one request.
func (m *GroupManager) ConfirmDissolve(ctx context.Context) error {
	chat, err := m.activeGroup()
	if err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case m.dissolving:
		m.mu.Unlock()
		return ErrDissolveInProgress
	case !m.dissolveArmed:
		m.mu.Unlock()
		return ErrNotConfirmed
	}
	m.dissolveArmed = false
	m.dissolving = true
	m.mu.Unlock()

	err = m.api.DissolveGroup(ctx, chat.ChatID)

	m.mu.Lock()
	m.dissolving = false
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Info().Str("chat_id", chat.ChatID).Msg("group dissolved")
	m.CloseView()
	m.session.Clear()
	m.mu.Lock()
	fn := m.onMutated
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Candidates lists users that can be added to the active group. The user list is
// fetched once per view; filtering happens locally.
func (m *GroupManager) Candidates(ctx context.Context, filter CandidateFilter) ([]models.ChatParticipant, error) {
	chat, err := m.activeGroup()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	users, loaded := m.users, m.usersLoaded
	m.mu.Unlock()
	if !loaded {
		users, err = m.api.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.users, m.usersLoaded = users, true
		m.mu.Unlock()
	}

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]models.ChatParticipant, 0, len(users))
	for _, u := range users {
		if chat.HasParticipant(u.UserID) {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if query != "" && !matchesQuery(u, query) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func matchesQuery(u models.ChatParticipant, query string) bool {
	for _, field := range []string{u.FirstName, u.LastName, u.FirstName + " " + u.LastName} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
