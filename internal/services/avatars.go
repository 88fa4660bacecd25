package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const (
	// DefaultAvatarWarmTimeout bounds one background warm pass.
	DefaultAvatarWarmTimeout = 5 * time.Second
	// DefaultAvatarRetryAfter is how long Warm skips a user whose fetch failed.
	DefaultAvatarRetryAfter = time.Minute

	avatarWarmConcurrency = 4
)

// AvatarFetcher loads a user's avatar URL from the backend.
type AvatarFetcher interface {
	GetAvatar(ctx context.Context, userID string) (string, error)
}

// AvatarCache maps user ids to avatar URLs for the lifetime of a gateway session.
// Entries are only ever added: the first fetched value for a user is kept.
type AvatarCache struct {
	api         AvatarFetcher
	group       singleflight.Group
	warmTimeout time.Duration
	retryAfter  time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	urls   map[string]string
	failed map[string]time.Time
}

func NewAvatarCache(api AvatarFetcher) *AvatarCache {
	return &AvatarCache{
		api:         api,
		warmTimeout: DefaultAvatarWarmTimeout,
		retryAfter:  DefaultAvatarRetryAfter,
		now:         time.Now,
		urls:        make(map[string]string),
		failed:      make(map[string]time.Time),
	}
}

// Get returns the cached avatar URL and whether the user has been fetched.
func (c *AvatarCache) Get(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.urls[userID]
	return url, ok
}

// FetchIfAbsent returns the cached URL, fetching it first if the user was never fetched.
// Concurrent callers for the same user share one request. Failed fetches are not cached.
func (c *AvatarCache) FetchIfAbsent(ctx context.Context, userID string) (string, error) {
	if url, ok := c.Get(userID); ok {
		return url, nil
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		if url, ok := c.Get(userID); ok {
			return url, nil
		}
		url, err := c.api.GetAvatar(ctx, userID)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.failed[userID] = c.now()
			return "", err
		}
		delete(c.failed, userID)
		if existing, ok := c.urls[userID]; ok {
			url = existing
		} else {
			c.urls[userID] = url
		}
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Apply overlays cached avatars onto participants. Participants without a cached
// entry keep the URL the backend sent.
func (c *AvatarCache) Apply(participants []models.ChatParticipant) []models.ChatParticipant {
	out := make([]models.ChatParticipant, len(participants))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, p := range participants {
		if url, ok := c.urls[p.UserID]; ok && url != "" {
			p.AvatarURL = url
		}
		out[i] = p
	}
	return out
}

// missing returns the distinct users that are neither cached nor inside their
// failure backoff.
func (c *AvatarCache) missing(participants []models.ChatParticipant) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	seen := make(map[string]struct{}, len(participants))
	var ids []string
	for _, p := range participants {
		if p.UserID == "" {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		if _, ok := c.urls[p.UserID]; ok {
			continue
		}
		if at, ok := c.failed[p.UserID]; ok && now.Sub(at) < c.retryAfter {
			continue
		}
		ids = append(ids, p.UserID)
	}
	return ids
}

// Warm fetches avatars for participants not yet cached, a few at a time and
// within the warm timeout. Failures are ignored. It reports whether any user
// was added to the cache.
func (c *AvatarCache) Warm(ctx context.Context, participants []models.ChatParticipant) bool {
	ids := c.missing(participants)
	if len(ids) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.warmTimeout)
	defer cancel()

	var added atomic.Bool
	var g errgroup.Group
	g.SetLimit(avatarWarmConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := c.FetchIfAbsent(ctx, id); err == nil {
				added.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return added.Load()
}

// WarmAsync warms participants on a background goroutine detached from any
// request and calls done once new avatars are cached.
func (c *AvatarCache) WarmAsync(participants []models.ChatParticipant, done func()) {
	if len(c.missing(participants)) == 0 {
		return
	}
	go func() {
		if c.Warm(context.Background(), participants) && done != nil {
			done()
		}
	}()
}
