package models

import "time"

// EventType represents the type of domain event.
type EventType string

const (
	EventUserCreated      EventType = "user.created"
	EventUserUpdated      EventType = "user.updated"
	EventUserDeleted      EventType = "user.deleted"
	EventPurchaseCreated  EventType = "purchase.created"
	EventOrderCreated     EventType = "order.created"
	EventOrderCompleted   EventType = "order.completed"
	EventNotificationSent EventType = "notification.sent"
	EventSystemError      EventType = "system.error"
	EventCustom           EventType = "custom"
)

// EventSource identifies where an event entered the system.
type EventSource string

const (
	SourceAPI     EventSource = "api"
	SourceKafka   EventSource = "kafka"
	SourceSystem  EventSource = "system"
	SourceWebhook EventSource = "webhook"
)

// Topic names. The consumer subscribes to all of them under one group;
// the producer targets one topic per event family.
const (
	TopicUserEvents         = "user-events"
	TopicPurchaseEvents     = "purchase-events"
	TopicOrderEvents        = "order-events"
	TopicNotificationEvents = "notification-events"
	TopicSystemEvents       = "system-events"
)

// Topics returns the full topic set, in subscription order.
func Topics() []string {
	return []string{
		TopicUserEvents,
		TopicPurchaseEvents,
		TopicOrderEvents,
		TopicNotificationEvents,
		TopicSystemEvents,
	}
}

// TopicFor maps an event type to the topic of its event family.
func TopicFor(t EventType) string {
	switch t {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return TopicUserEvents
	case EventPurchaseCreated:
		return TopicPurchaseEvents
	case EventOrderCreated, EventOrderCompleted:
		return TopicOrderEvents
	case EventNotificationSent:
		return TopicNotificationEvents
	}
	return TopicSystemEvents
}

// Valid reports whether t belongs to the known event type vocabulary.
func (t EventType) Valid() bool {
	switch t {
	case EventUserCreated, EventUserUpdated, EventUserDeleted,
		EventPurchaseCreated,
		EventOrderCreated, EventOrderCompleted,
		EventNotificationSent,
		EventSystemError, EventCustom:
		return true
	}
	return false
}

// Provenance records where in the broker stream a kafka-sourced event came
// from, plus retry bookkeeping. Events from other sources carry none.
type Provenance struct {
	Topic      string `json:"topic" db:"topic"`
	Partition  int32  `json:"partition" db:"partition"`
	Offset     int64  `json:"offset" db:"kafka_offset"`
	RetryCount int    `json:"retry_count" db:"retry_count"`
	LastError  string `json:"last_error,omitempty" db:"last_error"`
}

// Event is the persisted record of something that happened.
// ID, Type, Data, Source and Timestamp are immutable after creation;
// only Processed and the provenance retry bookkeeping mutate.
type Event struct {
	ID         string         `json:"id" db:"id"`
	Type       EventType      `json:"type" db:"event_type"`
	UserID     string         `json:"user_id,omitempty" db:"user_id"`
	Data       map[string]any `json:"data" db:"data"`
	Source     EventSource    `json:"source" db:"source"`
	Timestamp  time.Time      `json:"timestamp" db:"event_timestamp"`
	Processed  bool           `json:"processed" db:"processed"`
	Provenance *Provenance    `json:"provenance,omitempty"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// EventMessage is the broker wire envelope. Timestamp is optional and
// defaults to delivery time on the consuming side.
type EventMessage struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// PartitionKey returns the default partition key for the message: the user
// ID, so that events for one user stay on one ordered partition.
func (m EventMessage) PartitionKey() string {
	return m.UserID
}

// CreateEventRequest is the request body for creating an event directly
// through the API, with no broker involvement.
type CreateEventRequest struct {
	Type      EventType      `json:"type" binding:"required"`
	UserID    string         `json:"user_id,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// PublishEventRequest is the request body for publishing an event onto the
// broker topic of its event family.
type PublishEventRequest struct {
	Type         EventType      `json:"type" binding:"required"`
	UserID       string         `json:"user_id,omitempty"`
	Data         map[string]any `json:"data"`
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	PartitionKey string         `json:"partition_key,omitempty"`
}
