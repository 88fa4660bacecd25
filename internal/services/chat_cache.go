package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const (
	conversationKeyPrefix = "chat:conversations:"
	conversationTTL       = 1 * time.Hour
)

func conversationKey(profile string) string {
	return conversationKeyPrefix + profile
}

// ConversationCache keeps the last fetched conversation list in Redis so a
// restarted gateway can serve the sidebar before the first re-fetch completes.
type ConversationCache struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

func NewConversationCache(client *redis.Client, profile string, logger zerolog.Logger) *ConversationCache {
	return &ConversationCache{
		client: client,
		key:    conversationKey(profile),
		log:    logger.With().Str("component", "conversation_cache").Logger(),
	}
}

// Save replaces the cached list. Failures are logged; the cache is best effort.
func (c *ConversationCache) Save(ctx context.Context, chats []models.Chat) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(chats)
	if err != nil {
		return
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.key, data, 0)
	pipe.Expire(ctx, c.key, conversationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to cache conversation list")
	}
}

// Load returns the cached list, or false on a miss.
func (c *ConversationCache) Load(ctx context.Context) ([]models.Chat, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("failed to read cached conversation list")
		}
		return nil, false
	}
	var chats []models.Chat
	if err := json.Unmarshal(raw, &chats); err != nil {
		return nil, false
	}
	return chats, true
}

// Invalidate drops the cached list.
func (c *ConversationCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.log.Warn().Err(err).Msg("failed to invalidate conversation list")
	}
}
