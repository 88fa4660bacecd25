package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

// DefaultTypingQuietWindow is how long keystrokes must pause before presence is published.
const DefaultTypingQuietWindow = 500 * time.Millisecond

// PresencePublisher publishes typing events on a chat's presence channel.
type PresencePublisher interface {
	PublishPresence(ctx context.Context, event models.PresenceEvent) error
}

type typingState struct {
	isTyping bool
	timer    *time.Timer
	gen      uint64
}

// TypingBroadcaster debounces local typing intent per chat and publishes it fire-and-forget.
type TypingBroadcaster struct {
	pub      PresencePublisher
	userID   string
	username string
	quiet    time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	chats  map[string]*typingState
	closed bool
}

func NewTypingBroadcaster(pub PresencePublisher, userID, username string, quiet time.Duration, logger zerolog.Logger) *TypingBroadcaster {
	if quiet <= 0 {
		quiet = DefaultTypingQuietWindow
	}
	return &TypingBroadcaster{
		pub:      pub,
		userID:   userID,
		username: username,
		quiet:    quiet,
		log:      logger.With().Str("component", "typing").Logger(),
		chats:    make(map[string]*typingState),
	}
}

// SetTyping records the latest typing intent for chatID and (re)starts its quiet window.
// When the window elapses without another call, the latest intent is published.
func (b *TypingBroadcaster) SetTyping(chatID string, isTyping bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || chatID == "" {
		return
	}

	st, ok := b.chats[chatID]
	if !ok {
		st = &typingState{}
		b.chats[chatID] = st
	}
	st.isTyping = isTyping
	if st.timer != nil {
		st.timer.Stop()
	}

	st.gen++
	gen := st.gen
	st.timer = time.AfterFunc(b.quiet, func() { b.fire(chatID, gen) })
}

func (b *TypingBroadcaster) fire(chatID string, gen uint64) {
	b.mu.Lock()
	st, ok := b.chats[chatID]
	if !ok || st.gen != gen || st.timer == nil || b.closed {
		b.mu.Unlock()
		return
	}
	st.timer = nil
	event := models.PresenceEvent{
		ChatID:   chatID,
		UserID:   b.userID,
		Username: b.username,
		IsTyping: st.isTyping,
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.pub.PublishPresence(ctx, event); err != nil {
		b.log.Warn().Err(err).Str("chat_id", chatID).Msg("failed to publish typing presence")
	}
}

// Pending reports whether a debounce timer is outstanding for chatID.
func (b *TypingBroadcaster) Pending(chatID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.chats[chatID]
	return ok && st.timer != nil
}

// Stop cancels the debounce timer of chatID and forgets its state.
func (b *TypingBroadcaster) Stop(chatID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.chats[chatID]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(b.chats, chatID)
	}
}

// Close cancels every timer. Further calls are ignored.
func (b *TypingBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.chats {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(b.chats, id)
	}
	b.closed = true
}
