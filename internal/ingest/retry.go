package ingest

import (
	"context"
	"fmt"
	"log"
)

// Retry bounds. Events that exhaust the ceiling stay unprocessed and are
// surfaced through stats for manual intervention; there is no dead-letter
// topic.
const (
	RetryCeiling      = 3
	DefaultRetryBatch = 10
	MaxRetryBatch     = 50
)

// Coordinator gives failed events additional processing attempts without
// broker redelivery, which would break per-partition ordering. Invocations
// must not overlap; callers serialize them externally.
type Coordinator struct {
	pipeline *Pipeline
}

// NewCoordinator creates a retry coordinator sharing the pipeline's stores
// and side-effect handlers.
func NewCoordinator(p *Pipeline) *Coordinator {
	return &Coordinator{pipeline: p}
}

// Retry selects up to maxBatch unprocessed events below the retry ceiling,
// oldest first, and re-attempts each independently. It returns the number
// of events that reached processed state.
func (c *Coordinator) Retry(ctx context.Context, maxBatch int) (int, error) {
	if maxBatch <= 0 {
		maxBatch = DefaultRetryBatch
	}
	if maxBatch > MaxRetryBatch {
		maxBatch = MaxRetryBatch
	}

	events, err := c.pipeline.Events.FindRetryable(ctx, RetryCeiling, maxBatch)
	if err != nil {
		return 0, fmt.Errorf("retry: select batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	log.Printf("[Retry] Re-attempting %d event(s)", len(events))

	succeeded := 0
	for i := range events {
		e := &events[i]

		if err := c.pipeline.Events.ClearError(ctx, e.ID); err != nil {
			log.Printf("[Retry] Failed to bump retry count: id=%s err=%v", e.ID, err)
			continue
		}
		if e.Provenance != nil {
			e.Provenance.RetryCount++
			e.Provenance.LastError = ""
		}

		if err := c.pipeline.applySideEffect(ctx, e); err != nil {
			log.Printf("[Retry] Attempt failed: type=%s id=%s err=%v", e.Type, e.ID, err)
			if serr := c.pipeline.Events.SetError(ctx, e.ID, err.Error()); serr != nil {
				log.Printf("[Retry] Failed to record error: id=%s err=%v", e.ID, serr)
			}
			continue
		}

		if err := c.pipeline.Events.MarkProcessed(ctx, e.ID); err != nil {
			log.Printf("[Retry] Failed to mark processed: id=%s err=%v", e.ID, err)
			continue
		}

		log.Printf("[Retry] Event reprocessed: type=%s id=%s", e.Type, e.ID)
		succeeded++
	}

	return succeeded, nil
}
