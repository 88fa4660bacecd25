package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultSidebarThrottle drops refresh requests arriving sooner than this after the last one.
	DefaultSidebarThrottle = 2000 * time.Millisecond
	// DefaultSidebarDelay lets the backend finish processing a message before the re-fetch.
	DefaultSidebarDelay = 1500 * time.Millisecond
)

// SidebarRefresher throttles and delays re-fetches of the conversation list.
type SidebarRefresher struct {
	refresh  func(ctx context.Context) error
	throttle time.Duration
	delay    time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	timer  *time.Timer
	gen    uint64
	closed bool
}

func NewSidebarRefresher(refresh func(ctx context.Context) error, throttle, delay time.Duration, logger zerolog.Logger) *SidebarRefresher {
	if throttle <= 0 {
		throttle = DefaultSidebarThrottle
	}
	if delay < 0 {
		delay = DefaultSidebarDelay
	}
	return &SidebarRefresher{
		refresh:  refresh,
		throttle: throttle,
		delay:    delay,
		now:      time.Now,
		log:      logger.With().Str("component", "sidebar").Logger(),
	}
}

// RequestAfterSend schedules a refresh after the settle delay, unless one was
// accepted within the throttle window. It reports whether the request was accepted.
func (r *SidebarRefresher) RequestAfterSend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.throttle {
		return false
	}
	r.last = now
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.delay, func() { r.fire(gen) })
	return true
}

func (r *SidebarRefresher) fire(gen uint64) {
	r.mu.Lock()
	if r.closed || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("scheduled sidebar refresh failed")
	}
}

// RefreshNow re-fetches immediately, bypassing throttle and delay. A scheduled
// refresh is cancelled since this one covers it.
func (r *SidebarRefresher) RefreshNow(ctx context.Context) error {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
	r.last = r.now()
	r.mu.Unlock()
	return r.refresh(ctx)
}

// Close cancels any scheduled refresh.
func (r *SidebarRefresher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.closed = true
}
