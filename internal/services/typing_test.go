package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const testQuiet = 30 * time.Millisecond

func newTestTyping(pub PresencePublisher) *TypingBroadcaster {
	return NewTypingBroadcaster(pub, "me", "Instructor", testQuiet, zerolog.Nop())
}

func TestTypingBroadcaster_BurstPublishesOnce(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestTyping(pub)
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.SetTyping("c1", true)
	}
	assert.True(t, b.Pending("c1"))
	assert.Empty(t, pub.published(), "nothing is sent inside the quiet window")

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testQuiet)
	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.PresenceEvent{ChatID: "c1", UserID: "me", Username: "Instructor", IsTyping: true}, events[0])
	assert.False(t, b.Pending("c1"))
}

func TestTypingBroadcaster_LastIntentWins(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestTyping(pub)
	defer b.Close()

	b.SetTyping("c1", true)
	b.SetTyping("c1", false)

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, pub.published()[0].IsTyping)
}

func TestTypingBroadcaster_StopCancelsPendingPublish(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestTyping(pub)
	defer b.Close()

	b.SetTyping("c1", true)
	b.Stop("c1")
	assert.False(t, b.Pending("c1"))

	time.Sleep(3 * testQuiet)
	assert.Empty(t, pub.published())
}

func TestTypingBroadcaster_ChatsAreIndependent(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestTyping(pub)
	defer b.Close()

	b.SetTyping("c1", true)
	b.SetTyping("c2", false)

	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)
	byChat := map[string]bool{}
	for _, e := range pub.published() {
		byChat[e.ChatID] = e.IsTyping
	}
	assert.Equal(t, map[string]bool{"c1": true, "c2": false}, byChat)
}

func TestTypingBroadcaster_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	b := newTestTyping(pub)
	defer b.Close()

	b.SetTyping("c1", true)
	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)

	b.SetTyping("c1", false)
	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestTypingBroadcaster_IgnoresCallsAfterClose(t *testing.T) {
	pub := &fakePublisher{}
	b := newTestTyping(pub)
	b.SetTyping("c1", true)
	b.Close()
	b.SetTyping("c1", true)
	b.SetTyping("", true)

	time.Sleep(3 * testQuiet)
	assert.Empty(t, pub.published())
	assert.False(t, b.Pending("c1"))
}
