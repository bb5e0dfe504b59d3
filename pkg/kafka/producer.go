package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/IBM/sarama"

	"eventpipeline/pkg/models"
)

// ErrNotConnected is returned when Send is called before Connect.
var ErrNotConnected = errors.New("kafka: producer not connected")

// Header names attached to every published message.
const (
	HeaderContentType = "content-type"
	HeaderMessageType = "message-type"

	contentTypeJSON = "application/json"
)

// Producer publishes event messages onto named topics. It must be connected
// before use; Connect is safe to call more than once.
type Producer struct {
	brokers []string

	mu       sync.Mutex
	producer sarama.SyncProducer
}

// NewProducer creates an unconnected producer for the given brokers.
func NewProducer(brokers []string) *Producer {
	return &Producer{brokers: brokers}
}

// NewProducerFromClient wraps an already constructed sarama producer.
// Used by tests to inject a mock.
func NewProducerFromClient(sp sarama.SyncProducer) *Producer {
	return &Producer{producer: sp}
}

// ProducerConfig returns the sarama configuration used for publishing.
// Exposed so tests can build a matching mock producer.
func ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// Connect establishes the broker connection. Calling Connect on an already
// connected producer is a no-op.
func (p *Producer) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.producer != nil {
		return nil
	}

	sp, err := sarama.NewSyncProducer(p.brokers, ProducerConfig())
	if err != nil {
		return fmt.Errorf("kafka: connect producer: %w", err)
	}

	log.Printf("[Producer] Connected to Kafka brokers=%v", p.brokers)
	p.producer = sp
	return nil
}

// Send publishes one message to the topic and reports its placement.
// An empty key falls back to the message's partition key (the user ID),
// preserving per-user ordering.
func (p *Producer) Send(topic string, msg models.EventMessage, key string) (partition int32, offset int64, err error) {
	p.mu.Lock()
	sp := p.producer
	p.mu.Unlock()

	if sp == nil {
		return 0, 0, ErrNotConnected
	}

	if key == "" {
		key = msg.PartitionKey()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("kafka: marshal message: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSON)},
			{Key: []byte(HeaderMessageType), Value: []byte(msg.Type)},
		},
	}
	if key != "" {
		pm.Key = sarama.StringEncoder(key)
	}

	partition, offset, err = sp.SendMessage(pm)
	if err != nil {
		return 0, 0, fmt.Errorf("kafka: send to %s: %w", topic, err)
	}

	log.Printf("[Producer] Published event: topic=%s type=%s key=%s partition=%d offset=%d",
		topic, msg.Type, key, partition, offset)
	return partition, offset, nil
}

// Close closes the underlying producer. The producer can be reconnected
// with Connect afterwards.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.producer == nil {
		return nil
	}
	err := p.producer.Close()
	p.producer = nil
	return err
}
