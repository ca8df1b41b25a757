package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"

	"github.com/renloop/chat-service/internal/domain"
	"github.com/renloop/chat-service/pkg/log"
)

// KafkaBus implements Bus using a single Kafka topic keyed by room ID.
// Every subscription consumes in its own consumer group so each live
// session sees every event of its room.
type KafkaBus struct {
	producer *kafka.Producer
	config   KafkaConfig
	doneCh   chan struct{}
}

// NewKafkaBus creates a new Kafka-based bus.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	if cfg.Topic == "" {
		cfg.Topic = "chat-events"
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		producer: p,
		config:   cfg,
		doneCh:   make(chan struct{}),
	}

	go b.deliveryReportHandler()

	if err := b.ensureTopic(); err != nil {
		log.L().Warn().Err(err).Msg("failed to ensure kafka topic (may already exist)")
	}

	return b, nil
}

// ensureTopic creates the events topic if it doesn't exist.
func (b *KafkaBus) ensureTopic() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": b.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := b.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             b.config.Topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			log.L().Warn().Str("topic", r.Topic).Err(r.Error).Msg("failed to create kafka topic")
		}
	}

	return nil
}

// deliveryReportHandler processes delivery reports from the producer.
func (b *KafkaBus) deliveryReportHandler() {
	for e := range b.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.L().Error().Err(ev.TopicPartition.Error).Msg("kafka bus delivery failed")
			}
		}
	}
	close(b.doneCh)
}

// Publish produces the event onto the shared topic, keyed by room ID so
// a room's events stay ordered within one partition.
func (b *KafkaBus) Publish(ctx context.Context, roomID string, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &b.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(roomID),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

// Subscribe creates a consumer with a unique group ID and filters the
// shared topic down to the room's events.
func (b *KafkaBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	groupID := b.config.GroupID
	if groupID == "" {
		groupID = "chat-service"
	}
	groupID = fmt.Sprintf("%s-%s", groupID, uuid.New().String())

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       b.config.Brokers,
		"group.id":                groupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(b.config.Topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", b.config.Topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		consumer: c,
		cancel:   cancel,
		events:   make(chan *domain.Event, 100),
	}
	go sub.run(subCtx, roomID)

	return sub, nil
}

// Close flushes and closes the producer. Open subscriptions are closed
// by their owners.
func (b *KafkaBus) Close() error {
	b.producer.Flush(5000)
	b.producer.Close()
	<-b.doneCh
	return nil
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	events   chan *domain.Event
}

func (s *kafkaSubscription) Events() <-chan *domain.Event {
	return s.events
}

func (s *kafkaSubscription) Close() error {
	s.cancel()
	return s.consumer.Close()
}

func (s *kafkaSubscription) run(ctx context.Context, roomID string) {
	defer close(s.events)

	l := log.L().With().Str(log.FieldRoomID, roomID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := s.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if string(e.Key) != roomID {
				continue
			}

			var event domain.Event
			if err := json.Unmarshal(e.Value, &event); err != nil {
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

		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka bus consumer error")
			if e.IsFatal() {
				return
			}

		case kafka.OffsetsCommitted:
			// Normal auto-commit
		default:
			// Ignore other events
		}
	}
}
