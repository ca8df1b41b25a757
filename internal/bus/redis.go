package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/pkg/log"
)

// RedisBus implements Bus using Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a new Redis-based bus.
func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

// Publish publishes an event to the room's channel.
func (b *RedisBus) Publish(ctx context.Context, roomID string, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return b.client.Publish(ctx, RoomChannel(roomID), data).Err()
}

// Subscribe opens a dedicated Redis subscription for the room. Each call
// gets its own underlying connection so concurrent sessions on the same
// room each receive every event.
func (b *RedisBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, RoomChannel(roomID))

	// Confirm the subscription is established before events can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room channel: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan *domain.Event, 100),
	}
	go sub.run(ctx, roomID)

	return sub, nil
}

// Close closes the Redis client. Open subscriptions are closed by their
// owners.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan *domain.Event
}

func (s *redisSubscription) Events() <-chan *domain.Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

func (s *redisSubscription) run(ctx context.Context, roomID string) {
	defer close(s.events)

	l := log.L().With().Str(log.FieldRoomID, roomID).Logger()
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l.Warn().Err(err).Msg("skipping malformed bus event")
				continue
			}

			select {
			case s.events <- &event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Msg("subscriber falling behind, dropping bus event")
			}
		}
	}
}
