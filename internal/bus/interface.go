package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/renloop/chat-service/internal/domain"
)

// Bus fans chat events out to every live session of a room, across
// process boundaries.
type Bus interface {
	// Publish delivers the event to all current subscribers of the room.
	Publish(ctx context.Context, roomID string, event *domain.Event) error
	// Subscribe opens an independent event stream for the room. Each
	// subscriber receives its own copy of every published event.
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
	Close() error
}

// Subscription is one subscriber's view of a room's event stream. The
// channel returned by Events is closed when the subscription ends.
type Subscription interface {
	Events() <-chan *domain.Event
	Close() error
}

// KafkaConfig holds Kafka-specific configuration.
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	GroupID    string `mapstructure:"group_id"`
	Topic      string `mapstructure:"topic"`
	Partitions int    `mapstructure:"partitions"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Config holds the configuration for the broadcast bus.
type Config struct {
	Driver string      `mapstructure:"driver"` // "redis", "kafka"
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver: "redis",
		Redis: RedisConfig{
			Address:      "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    "localhost:9092",
			GroupID:    "chat-service",
			Topic:      "chat-events",
			Partitions: 4,
		},
	}
}

// New creates a Bus instance based on the configuration.
func New(cfg Config) (Bus, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaBus(cfg.Kafka)
	case "redis", "":
		return NewRedisBus(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown bus driver: %s", cfg.Driver)
	}
}
