package queue

import (
	"fmt"
	"strings"

	"github.com/lavapool/lavapool/internal/config"
)

// Type identifies a relay backend
type Type string

const (
	// TypeNATS relays events over NATS JetStream (default)
	TypeNATS Type = "nats"

	// TypeRedis relays events over Redis Streams
	TypeRedis Type = "redis"

	// TypeKafka relays events over Apache Kafka
	TypeKafka Type = "kafka"

	// TypeMemory relays events in-process (for testing)
	TypeMemory Type = "memory"
)

// New creates a Queue instance for the configured relay backend.
// Default is NATS if type is not specified.
func New(cfg config.RelayConfig) (Queue, error) {
	relayType := Type(strings.ToLower(cfg.Type))
	if relayType == "" {
		relayType = TypeNATS
	}

	switch relayType {
	case TypeNATS:
		return newNATSQueue(cfg.URL)

	case TypeRedis:
		return newRedisQueue(redisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})

	case TypeKafka:
		return newKafkaQueue(kafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
		})

	case TypeMemory:
		return newMemoryQueue(), nil

	default:
		return nil, fmt.Errorf("unsupported relay type: %s (supported: nats, redis, kafka, memory)", relayType)
	}
}
