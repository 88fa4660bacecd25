package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/backend"
)

const (
	// CredentialKeyPrefix is the Redis key prefix for stored bearer tokens.
	CredentialKeyPrefix = "chat:credential:"
	// CredentialTTL bounds how long a stored token survives gateway restarts.
	CredentialTTL = 7 * 24 * time.Hour
)

// TokenStore persists the bearer credential.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// MemoryTokenStore keeps the credential in process memory only.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Delete(context.Context) error {
	return s.Save(context.Background(), "")
}

// RedisTokenStore keeps the credential under chat:credential:<profile>.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

func NewRedisTokenStore(client *redis.Client, profile string) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: CredentialKeyPrefix + profile}
}

func (s *RedisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (s *RedisTokenStore) Save(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key, token, CredentialTTL).Err()
}

func (s *RedisTokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// CredentialAccessor reads and clears the bearer credential, and runs the
// redirect-to-login hook when the backend rejects it.
type CredentialAccessor struct {
	store         TokenStore
	onAuthFailure func()
	log           zerolog.Logger

	// writeMu orders store writes with the in-memory token.
	writeMu    sync.Mutex
	mu         sync.Mutex
	token      string
	loaded     bool
	redirected bool
}

// NewCredentialAccessor creates an accessor over store. onAuthFailure may be nil.
func NewCredentialAccessor(store TokenStore, onAuthFailure func(), logger zerolog.Logger) *CredentialAccessor {
	return &CredentialAccessor{
		store:         store,
		onAuthFailure: onAuthFailure,
		log:           logger.With().Str("component", "credentials").Logger(),
	}
}

// Token returns the current bearer credential or backend.ErrNoCredential.
func (a *CredentialAccessor) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		token, err := a.store.Load(ctx)
		cancel()
		if err != nil {
			a.log.Warn().Err(err).Msg("failed to load stored credential")
		} else {
			a.token = strings.TrimSpace(token)
			a.loaded = true
		}
	}
	if a.token == "" {
		return "", backend.ErrNoCredential
	}
	return a.token, nil
}

// Set stores a new credential and re-arms the auth-failure hook.
func (a *CredentialAccessor) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return backend.NewValidationError("token is required")
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.store.Save(ctx, token); err != nil {
		return err
	}
	a.mu.Lock()
	a.token = token
	a.loaded = true
	a.redirected = false
	a.mu.Unlock()
	return nil
}

// Clear forgets the credential.
func (a *CredentialAccessor) Clear(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.mu.Lock()
	a.token = ""
	a.loaded = true
	a.mu.Unlock()
	return a.store.Delete(ctx)
}

// HandleAuthFailure handles the backend rejecting token, the credential a request
// was sent with ("" when none was available). The credential is cleared and the
// redirect hook runs once per credential. A token that has since been replaced
// leaves the newer one in place.
func (a *CredentialAccessor) HandleAuthFailure(token string) {
	a.writeMu.Lock()
	a.mu.Lock()
	if a.loaded && a.token != strings.TrimSpace(token) {
		a.mu.Unlock()
		a.writeMu.Unlock()
		a.log.Debug().Msg("rejected credential was already replaced")
		return
	}
	a.token = ""
	a.loaded = true
	fire := !a.redirected
	a.redirected = true
	hook := a.onAuthFailure
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := a.store.Delete(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to delete stored credential")
	}
	cancel()
	a.writeMu.Unlock()

	if fire && hook != nil {
		a.log.Info().Msg("credential rejected, redirecting to login")
		hook()
	}
}

// OnAuthFailure replaces the redirect hook.
func (a *CredentialAccessor) OnAuthFailure(fn func()) {
	a.mu.Lock()
	a.onAuthFailure = fn
	a.mu.Unlock()
}
