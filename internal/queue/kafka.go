package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaConfig represents Apache Kafka relay configuration
type kafkaConfig struct {
	Brokers      []string      // Kafka broker addresses
	GroupID      string        // Consumer group ID
	BatchTimeout time.Duration // Batch timeout for producer (default: 10ms)
	MaxRetries   int           // Max retries on failure (default: 3)
}

// KafkaQueue implements Queue using Apache Kafka
type KafkaQueue struct {
	config        kafkaConfig
	writers       map[string]*kafka.Writer
	subscriptions map[string]context.CancelFunc
	mu            sync.RWMutex
}

func newKafkaQueue(cfg kafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	if cfg.GroupID == "" {
		cfg.GroupID = "lavapool-group"
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &KafkaQueue{
		config:        cfg,
		writers:       make(map[string]*kafka.Writer),
		subscriptions: make(map[string]context.CancelFunc),
	}, nil
}

func (q *KafkaQueue) getOrCreateWriter(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if writer, exists := q.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(q.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: q.config.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  q.config.MaxRetries,
	}

	q.writers[topic] = writer
	return writer
}

// Publish publishes a message to a Kafka topic
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	writer := q.getOrCreateWriter(subject)

	msg := kafka.Message{
		Value: data,
		Time:  time.Now(),
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}

	return nil
}

// Subscribe subscribes to a Kafka topic with a consumer group reader
func (q *KafkaQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.config.Brokers,
		GroupID:  q.config.GroupID,
		Topic:    subject,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.subscriptions[subject] = cancel

	go func() {
		defer reader.Close()
		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if err := handler(msg.Value); err != nil {
				// Leave uncommitted so the message is redelivered
				continue
			}

			_ = reader.CommitMessages(ctx, msg)
		}
	}()

	return nil
}

// Unsubscribe unsubscribes from a topic
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}

	cancel()
	delete(q.subscriptions, subject)
	return nil
}

// Close closes all writers and subscriptions
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, cancel := range q.subscriptions {
		cancel()
		delete(q.subscriptions, subject)
	}

	for topic, writer := range q.writers {
		_ = writer.Close()
		delete(q.writers, topic)
	}

	return nil
}
