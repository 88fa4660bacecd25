package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
)

type failingStore struct{ MemoryTokenStore }

func (*failingStore) Save(context.Context, string) error { return assert.AnError }

func TestCredentialAccessor_TokenLifecycle(t *testing.T) {
	store := &MemoryTokenStore{}
	a := NewCredentialAccessor(store, nil, zerolog.Nop())
	ctx := context.Background()

	_, err := a.Token()
	assert.ErrorIs(t, err, backend.ErrNoCredential)
	assert.True(t, backend.IsAuth(err))

	require.NoError(t, a.Set(ctx, "  tok-1  "))
	token, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	stored, _ := store.Load(ctx)
	assert.Equal(t, "tok-1", stored)

	require.NoError(t, a.Clear(ctx))
	_, err = a.Token()
	assert.ErrorIs(t, err, backend.ErrNoCredential)
	stored, _ = store.Load(ctx)
	assert.Empty(t, stored)
}

func TestCredentialAccessor_LoadsStoredToken(t *testing.T) {
	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(context.Background(), "persisted\n"))

	token, err := NewCredentialAccessor(store, nil, zerolog.Nop()).Token()
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestCredentialAccessor_SetValidation(t *testing.T) {
	a := NewCredentialAccessor(&MemoryTokenStore{}, nil, zerolog.Nop())
	err := a.Set(context.Background(), "   ")
	assert.True(t, backend.IsValidation(err))

	a = NewCredentialAccessor(&failingStore{}, nil, zerolog.Nop())
	assert.ErrorIs(t, a.Set(context.Background(), "tok"), assert.AnError)
	_, err = a.Token()
	assert.ErrorIs(t, err, backend.ErrNoCredential, "a token that failed to persist is not used")
}

func TestCredentialAccessor_AuthFailureHookFiresOncePerCredential(t *testing.T) {
	var fired atomic.Int32
	a := NewCredentialAccessor(&MemoryTokenStore{}, func() { fired.Add(1) }, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "tok-1"))

	a.HandleAuthFailure("tok-1")
	a.HandleAuthFailure("tok-1")
	assert.Equal(t, int32(1), fired.Load())
	_, err := a.Token()
	assert.ErrorIs(t, err, backend.ErrNoCredential)

	require.NoError(t, a.Set(ctx, "tok-2"))
	a.HandleAuthFailure("tok-2")
	assert.Equal(t, int32(2), fired.Load())
}

func TestCredentialAccessor_OnAuthFailureReplacesHook(t *testing.T) {
	var first, second bool
	a := NewCredentialAccessor(&MemoryTokenStore{}, func() { first = true }, zerolog.Nop())
	a.OnAuthFailure(func() { second = true })
	a.HandleAuthFailure("")
	assert.False(t, first)
	assert.True(t, second)
}

func TestCredentialAccessor_StaleRejectionKeepsNewerCredential(t *testing.T) {
	var fired atomic.Int32
	store := &MemoryTokenStore{}
	a := NewCredentialAccessor(store, func() { fired.Add(1) }, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "tok-old"))
	require.NoError(t, a.Set(ctx, "tok-new"))

	a.HandleAuthFailure("tok-old")

	token, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", stored)
	assert.Zero(t, fired.Load())

	a.HandleAuthFailure("tok-new")
	_, err = a.Token()
	assert.ErrorIs(t, err, backend.ErrNoCredential)
	assert.Equal(t, int32(1), fired.Load())
}
