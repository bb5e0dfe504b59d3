package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"eventpipeline/internal/store"
	"eventpipeline/pkg/kafka"
	"eventpipeline/pkg/models"
)

// Outcome classifies the result of handling one broker message. Every
// outcome commits the consumed offset; only a handle error (the event row
// itself could not be written) withholds the commit so the broker
// redelivers the message.
type Outcome int

const (
	// OutcomeProcessed means the event was persisted and its side effect
	// applied.
	OutcomeProcessed Outcome = iota
	// OutcomeQuarantined means the message body could not be decoded and a
	// system.error event was persisted in its place.
	OutcomeQuarantined
	// OutcomeFailed means the event was persisted but its side effect
	// failed; the retry coordinator will pick it up.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeQuarantined:
		return "quarantined"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Pipeline turns raw broker messages into durable, side-effect-applied
// events. It keeps no mutable state of its own and is safe to invoke
// concurrently for different partitions.
type Pipeline struct {
	Events *store.EventStore
	Users  *store.UserStore
}

// NewPipeline creates a pipeline over the given stores.
func NewPipeline(events *store.EventStore, users *store.UserStore) *Pipeline {
	return &Pipeline{Events: events, Users: users}
}

// Handle processes one broker message. The event row is persisted before
// any side effect runs, so a crash mid-handler leaves an inspectable
// unprocessed record rather than a lost message.
func (p *Pipeline) Handle(ctx context.Context, msg kafka.InboundMessage) (Outcome, error) {
	var envelope models.EventMessage
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return p.quarantine(ctx, msg, err)
	}

	event := &models.Event{
		ID:        uuid.New().String(),
		Type:      envelope.Type,
		UserID:    envelope.UserID,
		Data:      envelope.Data,
		Source:    models.SourceKafka,
		Timestamp: eventTime(envelope, msg),
		Processed: false,
		Provenance: &models.Provenance{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		},
	}

	if err := p.Events.Insert(ctx, event); err != nil {
		// Without a durable record there is nothing to retry against, so
		// the offset stays uncommitted and the broker redelivers.
		log.Printf("[Pipeline] Failed to persist event: topic=%s partition=%d offset=%d err=%v",
			msg.Topic, msg.Partition, msg.Offset, err)
		return OutcomeFailed, err
	}

	if err := p.applySideEffect(ctx, event); err != nil {
		log.Printf("[Pipeline] Side effect failed: type=%s id=%s err=%v", event.Type, event.ID, err)
		if rerr := p.Events.RecordFailure(ctx, event.ID, err.Error()); rerr != nil {
			log.Printf("[Pipeline] Failed to record failure: id=%s err=%v", event.ID, rerr)
		}
		return OutcomeFailed, nil
	}

	if err := p.Events.MarkProcessed(ctx, event.ID); err != nil {
		// The side effect ran; the event stays unprocessed and will be
		// retried, which the idempotent handlers tolerate.
		log.Printf("[Pipeline] Failed to mark processed: id=%s err=%v", event.ID, err)
		return OutcomeFailed, nil
	}

	log.Printf("[Pipeline] Event processed: type=%s id=%s topic=%s partition=%d offset=%d",
		event.Type, event.ID, msg.Topic, msg.Partition, msg.Offset)
	return OutcomeProcessed, nil
}

// quarantine persists a poison message as a system.error event so the
// partition is never blocked by an undecodable body.
func (p *Pipeline) quarantine(ctx context.Context, msg kafka.InboundMessage, decodeErr error) (Outcome, error) {
	log.Printf("[Pipeline] Poison message: topic=%s partition=%d offset=%d err=%v",
		msg.Topic, msg.Partition, msg.Offset, decodeErr)

	event := &models.Event{
		ID:   uuid.New().String(),
		Type: models.EventSystemError,
		Data: map[string]any{
			"raw_body":     string(msg.Value),
			"decode_error": decodeErr.Error(),
		},
		Source:    models.SourceKafka,
		Timestamp: deliveryTime(msg),
		Processed: false,
		Provenance: &models.Provenance{
			Topic:      msg.Topic,
			Partition:  msg.Partition,
			Offset:     msg.Offset,
			RetryCount: 1,
			LastError:  decodeErr.Error(),
		},
	}

	if err := p.Events.Insert(ctx, event); err != nil {
		log.Printf("[Pipeline] Failed to quarantine poison message: offset=%d err=%v", msg.Offset, err)
		return OutcomeQuarantined, err
	}
	return OutcomeQuarantined, nil
}

// HandleMessage adapts Handle to the consumer's handler signature, making
// the always-commit decision explicit.
func (p *Pipeline) HandleMessage(ctx context.Context, msg kafka.InboundMessage) error {
	outcome, err := p.Handle(ctx, msg)
	if err != nil {
		return err
	}
	if outcome != OutcomeProcessed {
		log.Printf("[Pipeline] Committing offset despite outcome=%s: topic=%s partition=%d offset=%d",
			outcome, msg.Topic, msg.Partition, msg.Offset)
	}
	return nil
}

func eventTime(envelope models.EventMessage, msg kafka.InboundMessage) time.Time {
	if envelope.Timestamp != nil && !envelope.Timestamp.IsZero() {
		return *envelope.Timestamp
	}
	return deliveryTime(msg)
}

func deliveryTime(msg kafka.InboundMessage) time.Time {
	if !msg.Timestamp.IsZero() {
		return msg.Timestamp
	}
	return time.Now()
}
