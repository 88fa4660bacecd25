package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
)

const presenceChannelPrefix = "chat:presence:"

// PresenceChannel returns the pub/sub channel of a chat.
func PresenceChannel(chatID string) string {
	return presenceChannelPrefix + chatID
}

// RedisPresence publishes and subscribes to typing presence over Redis pub/sub.
type RedisPresence struct {
	client *redis.Client
	log    zerolog.Logger

	startOnce sync.Once
}

func NewRedisPresence(client *redis.Client, logger zerolog.Logger) *RedisPresence {
	return &RedisPresence{client: client, log: logger.With().Str("component", "presence").Logger()}
}

// PublishPresence publishes event on the chat's presence channel.
func (p *RedisPresence) PublishPresence(ctx context.Context, event models.PresenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, PresenceChannel(event.ChatID), data).Err()
}

// Start launches the shared presence listener once per instance. handle is called
// for every remote event until ctx is cancelled.
func (p *RedisPresence) Start(ctx context.Context, handle func(models.PresenceEvent)) {
	p.startOnce.Do(func() {
		go p.run(ctx, handle)
	})
}

func (p *RedisPresence) run(ctx context.Context, handle func(models.PresenceEvent)) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := p.client.PSubscribe(ctx, presenceChannelPrefix+"*")
			defer pubsub.Close()

			p.log.Info().Str("pattern", presenceChannelPrefix+"*").Msg("presence subscriber started")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.log.Warn().Err(err).Dur("backoff", backoff).Msg("presence subscriber error")
					select {
					case <-ctx.Done():
					case <-time.After(backoff):
					}
					backoff = min(backoff*2, 30*time.Second)
					return
				}

				backoff = time.Second

				var event models.PresenceEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.log.Warn().Err(err).Str("channel", msg.Channel).Msg("failed to unmarshal presence event")
					continue
				}
				handle(event)
			}
		}()
	}
}
