package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

type fakeGroupSession struct {
	mu        sync.Mutex
	chat      *models.Chat
	refreshes int
	cleared   int
}

func (s *fakeGroupSession) Active() *models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Clone()
}

func (s *fakeGroupSession) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	return nil
}

func (s *fakeGroupSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = nil
	s.cleared++
}

func cohort() *models.Chat {
	return &models.Chat{
		ChatID:    "g1",
		ChatType:  models.ChatTypeGroup,
		GroupName: "Cohort 7",
		Participants: []models.ChatParticipant{
			{UserID: "me", FirstName: "Ina", LastName: "Structor", Role: models.RoleInstructor},
			{UserID: "s1", FirstName: "Ada", LastName: "Lovelace", Role: models.RoleStudent},
		},
	}
}

func newTestGroups(chat *models.Chat, removeClosesView bool) (*GroupManager, *fakeAPI, *fakeGroupSession, *atomic.Int32) {
	api := newFakeAPI()
	sess := &fakeGroupSession{chat: chat}
	var mutated atomic.Int32
	m := NewGroupManager(api, sess, removeClosesView, zerolog.Nop())
	m.OnMutated(func() { mutated.Add(1) })
	return m, api, sess, &mutated
}

func confirmAll(string) bool { return true }

func TestGroupManager_RequiresGroupChat(t *testing.T) {
	direct := &models.Chat{ChatID: "d1", ChatType: models.ChatTypeIndividual}
	m, api, _, _ := newTestGroups(direct, false)
	ctx := context.Background()

	assert.ErrorIs(t, m.OpenView(), ErrNotGroupChat)
	assert.ErrorIs(t, m.Rename(ctx, "x"), ErrNotGroupChat)
	assert.ErrorIs(t, m.AddParticipants(ctx, []string{"s2"}), ErrNotGroupChat)
	assert.ErrorIs(t, m.RequestDissolve(), ErrNotGroupChat)

	none, _, _, _ := newTestGroups(nil, false)
	assert.ErrorIs(t, none.OpenView(), ErrNoActiveChat)
	assert.Zero(t, api.count("UpdateGroupInfo"))
}

func TestGroupManager_Rename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCall bool
	}{
		{"new name", "Cohort 8", true},
		{"trimmed new name", "  Cohort 8  ", true},
		{"same name", "Cohort 7", false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, api, sess, mutated := newTestGroups(cohort(), false)
			var gotName string
			api.updateGroupInfo = func(_ context.Context, _ string, name string) error {
				gotName = name
				return nil
			}

			require.NoError(t, m.Rename(context.Background(), tt.input))
			if !tt.wantCall {
				assert.Zero(t, api.count("UpdateGroupInfo"))
				assert.Zero(t, sess.refreshes)
				return
			}
			assert.Equal(t, "Cohort 8", gotName)
			assert.Equal(t, 1, sess.refreshes)
			assert.Equal(t, int32(1), mutated.Load())
		})
	}
}

func TestGroupManager_RenameFailureSkipsRefresh(t *testing.T) {
	m, api, sess, mutated := newTestGroups(cohort(), false)
	api.updateGroupInfo = func(context.Context, string, string) error { return serverError("name taken") }

	err := m.Rename(context.Background(), "Cohort 8")
	assert.Equal(t, "name taken", backend.UserMessage(err))
	assert.Zero(t, sess.refreshes)
	assert.Zero(t, mutated.Load())
}

func TestGroupManager_AddParticipants(t *testing.T) {
	m, api, sess, _ := newTestGroups(cohort(), false)
	ctx := context.Background()

	assert.ErrorIs(t, m.AddParticipants(ctx, nil), ErrEmptySelection)
	assert.ErrorIs(t, m.AddParticipants(ctx, []string{" ", ""}), ErrEmptySelection)
	assert.Zero(t, api.count("AddParticipants"))

	var got []string
	api.addParticipants = func(_ context.Context, chatID string, ids []string) error {
		assert.Equal(t, "g1", chatID)
		got = ids
		return nil
	}
	m.ToggleSelection("s3")
	m.ToggleSelection("s2")
	m.ToggleSelection("s4")
	m.ToggleSelection("s4")
	assert.Equal(t, []string{"s2", "s3"}, m.Selection())

	require.NoError(t, m.AddParticipants(ctx, append(m.Selection(), "s2")))
	assert.Equal(t, []string{"s2", "s3"}, got)
	assert.Empty(t, m.Selection())
	assert.Equal(t, 1, sess.refreshes)
}

func TestGroupManager_RemoveParticipant(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		m, api, _, _ := newTestGroups(cohort(), false)
		var prompt string
		err := m.RemoveParticipant(context.Background(), "s1", func(p string) bool {
			prompt = p
			return false
		})
		assert.ErrorIs(t, err, ErrNotConfirmed)
		assert.Equal(t, "Remove Ada Lovelace from Cohort 7?", prompt)
		assert.Zero(t, api.count("RemoveParticipant"))
	})

	t.Run("nil confirmation", func(t *testing.T) {
		m, api, _, _ := newTestGroups(cohort(), false)
		assert.ErrorIs(t, m.RemoveParticipant(context.Background(), "s1", nil), ErrNotConfirmed)
		assert.Zero(t, api.count("RemoveParticipant"))
	})

	t.Run("view stays open", func(t *testing.T) {
		m, api, sess, mutated := newTestGroups(cohort(), false)
		require.NoError(t, m.OpenView())
		require.NoError(t, m.RemoveParticipant(context.Background(), "s1", confirmAll))
		assert.Equal(t, 1, api.count("RemoveParticipant"))
		assert.Equal(t, 1, sess.refreshes)
		assert.Equal(t, int32(1), mutated.Load())
		assert.True(t, m.ViewOpen())
	})

	t.Run("view closes when configured", func(t *testing.T) {
		m, _, _, _ := newTestGroups(cohort(), true)
		require.NoError(t, m.OpenView())
		require.NoError(t, m.RemoveParticipant(context.Background(), "s1", confirmAll))
		assert.False(t, m.ViewOpen())
	})

	t.Run("failure keeps view", func(t *testing.T) {
		m, api, sess, _ := newTestGroups(cohort(), true)
		api.removeParticipant = func(context.Context, string, string) error { return serverError("forbidden") }
		require.NoError(t, m.OpenView())
		require.Error(t, m.RemoveParticipant(context.Background(), "s1", confirmAll))
		assert.True(t, m.ViewOpen())
		assert.Zero(t, sess.refreshes)
	})
}

func TestGroupManager_DissolveIsTwoStep(t *testing.T) {
	m, api, sess, mutated := newTestGroups(cohort(), false)
	ctx := context.Background()
	require.NoError(t, m.OpenView())

	assert.ErrorIs(t, m.ConfirmDissolve(ctx), ErrNotConfirmed)

	require.NoError(t, m.RequestDissolve())
	assert.True(t, m.DissolvePending())
	m.CancelDissolve()
	assert.False(t, m.DissolvePending())
	assert.ErrorIs(t, m.ConfirmDissolve(ctx), ErrNotConfirmed)
	assert.Zero(t, api.count("DissolveGroup"))

	require.NoError(t, m.RequestDissolve())
	require.NoError(t, m.ConfirmDissolve(ctx))
	assert.Equal(t, 1, api.count("DissolveGroup"))
	assert.Equal(t, 1, sess.cleared)
	assert.Nil(t, sess.Active())
	assert.False(t, m.ViewOpen())
	assert.Equal(t, int32(1), mutated.Load())
}

func TestGroupManager_ConcurrentConfirmSendsOneDelete(t *testing.T) {
	m, api, sess, _ := newTestGroups(cohort(), false)
	release := make(chan struct{})
	api.dissolveGroup = func(context.Context, string) error {
		<-release
		return nil
	}
	require.NoError(t, m.RequestDissolve())

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.ConfirmDissolve(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return api.count("DissolveGroup") == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, api.count("DissolveGroup"))
	assert.Equal(t, 1, sess.cleared)
}

func TestGroupManager_DissolveFailureKeepsChat(t *testing.T) {
	m, api, sess, _ := newTestGroups(cohort(), false)
	api.dissolveGroup = func(context.Context, string) error { return serverError("not allowed") }

	require.NoError(t, m.RequestDissolve())
	require.Error(t, m.ConfirmDissolve(context.Background()))
	assert.Zero(t, sess.cleared)
	assert.NotNil(t, sess.Active())
	assert.False(t, m.DissolvePending())
}

func TestGroupManager_Candidates(t *testing.T) {
	m, api, _, _ := newTestGroups(cohort(), false)
	api.listUsers = func(context.Context) ([]models.ChatParticipant, error) {
		return []models.ChatParticipant{
			{UserID: "s1", FirstName: "Ada", LastName: "Lovelace", Role: models.RoleStudent},
			{UserID: "s2", FirstName: "Alan", LastName: "Turing", Role: models.RoleStudent},
			{UserID: "i2", FirstName: "Grace", LastName: "Hopper", Role: models.RoleInstructor},
			{UserID: "a1", FirstName: "Alan", LastName: "Kay", Role: models.RoleAdmin},
		}, nil
	}
	require.NoError(t, m.OpenView())
	ctx := context.Background()

	tests := []struct {
		name   string
		filter CandidateFilter
		want   []string
	}{
		{"all non-participants", CandidateFilter{}, []string{"s2", "i2", "a1"}},
		{"by role", CandidateFilter{Role: models.RoleStudent}, []string{"s2"}},
		{"by first name, any case", CandidateFilter{Query: "ALAN"}, []string{"s2", "a1"}},
		{"by full name", CandidateFilter{Query: "grace h"}, []string{"i2"}},
		{"role and query", CandidateFilter{Role: models.RoleAdmin, Query: "alan"}, []string{"a1"}},
		{"no match", CandidateFilter{Query: "zzz"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Candidates(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, u := range got {
				ids = append(ids, u.UserID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
	assert.Equal(t, 1, api.count("ListUsers"))

	m.CloseView()
	require.NoError(t, m.OpenView())
	_, err := m.Candidates(ctx, CandidateFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("ListUsers"), "reopening the view fetches users again")
}
