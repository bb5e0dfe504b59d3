package kafka

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// InboundMessage is one delivered broker message with its positional
// coordinates.
type InboundMessage struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// MessageHandler processes one inbound message. Returning nil commits the
// offset; returning an error withholds the commit so the broker redelivers
// the message after the session restarts.
type MessageHandler func(ctx context.Context, msg InboundMessage) error

// Consumer delivers messages from a fixed topic set under one consumer
// group. Messages on a partition are handled strictly in order; the offset
// is marked only after the handler returns.
type Consumer struct {
	brokers []string
	groupID string
	topics  []string
}

// NewConsumer creates a consumer for the given brokers, group and topics.
func NewConsumer(brokers []string, groupID string, topics []string) *Consumer {
	return &Consumer{brokers: brokers, groupID: groupID, topics: topics}
}

// Start joins the consumer group and blocks, dispatching messages to the
// handler until ctx is cancelled. A cancelled context drains the in-flight
// handler and returns nil; broker errors are returned to the caller.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, cfg)
	if err != nil {
		return fmt.Errorf("kafka: join group %s: %w", c.groupID, err)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			log.Printf("[Consumer] Group error: %v", err)
		}
	}()

	log.Printf("[Consumer] Consuming topics=%v group=%s", c.topics, c.groupID)

	h := &groupHandler{handler: handler}
	for {
		// Consume returns on rebalance; loop to rejoin the session.
		if err := group.Consume(ctx, c.topics, h); err != nil {
			return fmt.Errorf("kafka: consume: %w", err)
		}
		if ctx.Err() != nil {
			log.Println("[Consumer] Context cancelled, stopping")
			return nil
		}
	}
}

// groupHandler adapts a MessageHandler to sarama's consumer group callbacks.
type groupHandler struct {
	handler MessageHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		in := InboundMessage{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Timestamp: msg.Timestamp,
		}

		if err := h.handler(sess.Context(), in); err != nil {
			// Offset not marked: the message will be redelivered.
			log.Printf("[Consumer] Handler error, leaving offset uncommitted: topic=%s partition=%d offset=%d err=%v",
				msg.Topic, msg.Partition, msg.Offset, err)
			return err
		}

		sess.MarkMessage(msg, "")
	}
	return nil
}
