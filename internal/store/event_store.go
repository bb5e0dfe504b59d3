package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"eventpipeline/pkg/models"
)

const eventColumns = `id, event_type, user_id, data, source, event_timestamp, processed,
	topic, partition, kafka_offset, retry_count, last_error, created_at`

// EventStore is the single mutation boundary for Event records.
type EventStore struct {
	DB *sql.DB
}

// NewEventStore creates an EventStore backed by the given database.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{DB: db}
}

// Filter selects events by their queryable attributes. Zero values mean
// "no constraint"; Processed is a pointer so false can be filtered on.
type Filter struct {
	Type      models.EventType
	Source    models.EventSource
	Processed *bool
	UserID    string
	From      *time.Time
	To        *time.Time
}

// ListOptions controls ordering and pagination of Find.
type ListOptions struct {
	OldestFirst bool
	Skip        int
	Limit       int
}

// Stats aggregates event counts for the read-side surface.
type Stats struct {
	Total             int                        `json:"total"`
	Processed         int                        `json:"processed"`
	Unprocessed       int                        `json:"unprocessed"`
	PermanentlyFailed int                        `json:"permanently_failed"`
	ByType            map[models.EventType]int   `json:"by_type"`
	BySource          map[models.EventSource]int `json:"by_source"`
}

// Insert persists a new event.
func (s *EventStore) Insert(ctx context.Context, e *models.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("store: marshal event data: %w", err)
	}

	var topic, lastError sql.NullString
	var partition sql.NullInt32
	var offset sql.NullInt64
	retryCount := 0
	if e.Provenance != nil {
		topic = sql.NullString{String: e.Provenance.Topic, Valid: true}
		partition = sql.NullInt32{Int32: e.Provenance.Partition, Valid: true}
		offset = sql.NullInt64{Int64: e.Provenance.Offset, Valid: true}
		retryCount = e.Provenance.RetryCount
		if e.Provenance.LastError != "" {
			lastError = sql.NullString{String: e.Provenance.LastError, Valid: true}
		}
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO events (id, event_type, user_id, data, source, event_timestamp, processed,
			topic, partition, kafka_offset, retry_count, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.Type), nullString(e.UserID), data, string(e.Source), e.Timestamp, e.Processed,
		topic, partition, offset, retryCount, lastError, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

// FindByID returns the event with the given ID, or nil if it does not exist.
func (s *EventStore) FindByID(ctx context.Context, id string) (*models.Event, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = $1", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find event %s: %w", id, err)
	}
	return e, nil
}

// Updatable columns for UpdateByID. Identity and payload fields are
// immutable after creation and deliberately not listed.
var updatableColumns = map[string]string{
	"processed":   "processed",
	"retry_count": "retry_count",
	"last_error":  "last_error",
}

// UpdateByID applies a partial update to the event's mutable fields and
// returns the updated record, or nil if the event does not exist.
func (s *EventStore) UpdateByID(ctx context.Context, id string, fields map[string]any) (*models.Event, error) {
	if len(fields) == 0 {
		return s.FindByID(ctx, id)
	}

	// Deterministic clause order keeps the generated SQL stable.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := updatableColumns[k]; !ok {
			return nil, fmt.Errorf("store: field %q is not updatable", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", updatableColumns[k], i+1))
		args = append(args, fields[k])
	}
	args = append(args, id)

	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf("UPDATE events SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update event %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}

	return s.FindByID(ctx, id)
}

// MarkProcessed flips the event to processed.
func (s *EventStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, "UPDATE events SET processed = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("store: mark processed %s: %w", id, err)
	}
	return nil
}

// RecordFailure bumps the retry count and stores the error message, leaving
// the event unprocessed.
func (s *EventStore) RecordFailure(ctx context.Context, id, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		"UPDATE events SET retry_count = retry_count + 1, last_error = $1 WHERE id = $2",
		errMsg, id)
	if err != nil {
		return fmt.Errorf("store: record failure %s: %w", id, err)
	}
	return nil
}

// SetError stores the error message without touching the retry count. Used
// when a retry attempt fails after the count was already bumped.
func (s *EventStore) SetError(ctx context.Context, id, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		"UPDATE events SET last_error = $1 WHERE id = $2", errMsg, id)
	if err != nil {
		return fmt.Errorf("store: set error %s: %w", id, err)
	}
	return nil
}

// ClearError resets the stored error message before a retry attempt and
// bumps the retry count.
func (s *EventStore) ClearError(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		"UPDATE events SET retry_count = retry_count + 1, last_error = NULL WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("store: clear error %s: %w", id, err)
	}
	return nil
}

// Find returns events matching the filter, ordered by event timestamp.
func (s *EventStore) Find(ctx context.Context, f Filter, opts ListOptions) ([]models.Event, error) {
	where, args := buildWhere(f)

	order := "DESC"
	if opts.OldestFirst {
		order = "ASC"
	}
	query := "SELECT " + eventColumns + " FROM events" + where +
		" ORDER BY event_timestamp " + order
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// Count returns the number of events matching the filter.
func (s *EventStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)

	var n int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return n, nil
}

// FindRetryable returns up to limit unprocessed events below the retry
// ceiling, oldest first so the stalest failures are retried before newer
// ones.
func (s *EventStore) FindRetryable(ctx context.Context, ceiling, limit int) ([]models.Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+eventColumns+` FROM events
		 WHERE processed = FALSE AND retry_count < $1
		 ORDER BY event_timestamp ASC LIMIT $2`,
		ceiling, limit)
	if err != nil {
		return nil, fmt.Errorf("store: find retryable: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetStats aggregates counts over the whole store. failCeiling marks the
// retry count at which an unprocessed event is considered permanently
// failed.
func (s *EventStore) GetStats(ctx context.Context, failCeiling int) (*Stats, error) {
	stats := &Stats{
		ByType:   map[models.EventType]int{},
		BySource: map[models.EventSource]int{},
	}

	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE processed),
			COUNT(*) FILTER (WHERE NOT processed),
			COUNT(*) FILTER (WHERE NOT processed AND retry_count >= $1)
		 FROM events`, failCeiling).
		Scan(&stats.Total, &stats.Processed, &stats.Unprocessed, &stats.PermanentlyFailed)
	if err != nil {
		return nil, fmt.Errorf("store: stats totals: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, "SELECT event_type, COUNT(*) FROM events GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("store: stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("store: stats by type: %w", err)
		}
		stats.ByType[models.EventType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stats by type: %w", err)
	}

	rows, err = s.DB.QueryContext(ctx, "SELECT source, COUNT(*) FROM events GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("store: stats by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("store: stats by source: %w", err)
		}
		stats.BySource[models.EventSource(src)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stats by source: %w", err)
	}

	return stats, nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
// Conditions are emitted in a fixed order so queries are reproducible.
func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("event_type = $%d", string(f.Type))
	}
	if f.Source != "" {
		add("source = $%d", string(f.Source))
	}
	if f.Processed != nil {
		add("processed = $%d", *f.Processed)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.From != nil {
		add("event_timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("event_timestamp <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var eventType, source string
	var userID, topic, lastError sql.NullString
	var partition sql.NullInt32
	var offset sql.NullInt64
	var retryCount int
	var data []byte

	err := row.Scan(&e.ID, &eventType, &userID, &data, &source, &e.Timestamp, &e.Processed,
		&topic, &partition, &offset, &retryCount, &lastError, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = models.EventType(eventType)
	e.Source = models.EventSource(source)
	e.UserID = userID.String
	if len(data) > 0 {
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}

	if e.Source == models.SourceKafka {
		e.Provenance = &models.Provenance{
			Topic:      topic.String,
			Partition:  partition.Int32,
			Offset:     offset.Int64,
			RetryCount: retryCount,
			LastError:  lastError.String,
		}
	}

	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]models.Event, error) {
	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
