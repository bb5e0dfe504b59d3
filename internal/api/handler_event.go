package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eventpipeline/internal/ingest"
	"eventpipeline/internal/store"
	"eventpipeline/pkg/middleware"
	"eventpipeline/pkg/models"
)

// EventPublisher defines the interface for publishing events to the broker.
type EventPublisher interface {
	Send(topic string, msg models.EventMessage, key string) (partition int32, offset int64, err error)
}

// EventHandler handles event-related HTTP requests.
type EventHandler struct {
	Events    *store.EventStore
	Publisher EventPublisher
	Retry     *ingest.Coordinator
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events *store.EventStore, pub EventPublisher, retry *ingest.Coordinator) *EventHandler {
	return &EventHandler{Events: events, Publisher: pub, Retry: retry}
}

// CreateEvent godoc
// @Summary      Create an event directly
// @Description  Persists an event without broker involvement; it is stored already processed
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        request  body      models.CreateEventRequest  true  "Create event request"
// @Success      201      {object}  models.Event
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /events [post]
func (h *EventHandler) CreateEvent(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + string(req.Type)})
		return
	}

	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	// Direct writes skip the pipeline entirely, so they are stored already
	// processed and carry no provenance.
	event := &models.Event{
		ID:        uuid.New().String(),
		Type:      req.Type,
		UserID:    req.UserID,
		Data:      req.Data,
		Source:    models.SourceAPI,
		Timestamp: ts,
		Processed: true,
	}

	if err := h.Events.Insert(c.Request.Context(), event); err != nil {
		log.Printf("[API] Error creating event: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create event"})
		return
	}

	log.Printf("[API] Event created: id=%s type=%s correlation_id=%s", event.ID, event.Type, correlationID)
	c.JSON(http.StatusCreated, event)
}

// PublishEvent godoc
// @Summary      Publish an event to the broker
// @Description  Publishes the event onto the topic of its event family and reports its placement
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        request  body      models.PublishEventRequest  true  "Publish event request"
// @Success      202      {object}  map[string]any
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /events/publish [post]
func (h *EventHandler) PublishEvent(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req models.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type: " + string(req.Type)})
		return
	}

	msg := models.EventMessage{
		Type:      req.Type,
		UserID:    req.UserID,
		Data:      req.Data,
		Timestamp: req.Timestamp,
	}

	topic := models.TopicFor(req.Type)
	partition, offset, err := h.Publisher.Send(topic, msg, req.PartitionKey)
	if err != nil {
		log.Printf("[API] Error publishing event: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish event"})
		return
	}

	log.Printf("[API] Event published: type=%s topic=%s partition=%d offset=%d correlation_id=%s",
		req.Type, topic, partition, offset, correlationID)
	c.JSON(http.StatusAccepted, gin.H{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	})
}

// ListEvents godoc
// @Summary      List events
// @Description  Returns events filtered by type, source, processed state, user and time range
// @Tags         events
// @Produce      json
// @Param        type       query  string  false  "Event type"
// @Param        source     query  string  false  "Event source"
// @Param        processed  query  bool    false  "Processed state"
// @Param        user_id    query  string  false  "User ID"
// @Param        from       query  string  false  "RFC3339 lower bound on event timestamp"
// @Param        to         query  string  false  "RFC3339 upper bound on event timestamp"
// @Param        limit      query  int     false  "Page size (default 20, max 100)"
// @Param        skip       query  int     false  "Offset into the result set"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  map[string]string
// @Router       /events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := intQuery(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	skip := intQuery(c, "skip", 0)

	ctx := c.Request.Context()
	events, err := h.Events.Find(ctx, filter, store.ListOptions{Limit: limit, Skip: skip})
	if err != nil {
		log.Printf("[API] Error listing events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		return
	}
	total, err := h.Events.Count(ctx, filter)
	if err != nil {
		log.Printf("[API] Error counting events: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  limit,
		"skip":   skip,
	})
}

// GetEvent godoc
// @Summary      Get an event by ID
// @Tags         events
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  models.Event
// @Failure      404  {object}  map[string]string
// @Router       /events/{id} [get]
func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.Events.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch event"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetStats godoc
// @Summary      Aggregate event statistics
// @Description  Counts by type, source and processed state, including permanently failed events
// @Tags         events
// @Produce      json
// @Success      200  {object}  store.Stats
// @Router       /events/stats [get]
func (h *EventHandler) GetStats(c *gin.Context) {
	stats, err := h.Events.GetStats(c.Request.Context(), ingest.RetryCeiling)
	if err != nil {
		log.Printf("[API] Error fetching stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type retryRequest struct {
	Limit int `json:"limit"`
}

// RetryEvents godoc
// @Summary      Retry failed events
// @Description  Re-attempts up to limit unprocessed events below the retry ceiling, oldest first
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        request  body      retryRequest  false  "Batch size bound (default 10, max 50)"
// @Success      200      {object}  map[string]int
// @Router       /events/retry [post]
func (h *EventHandler) RetryEvents(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req retryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	reprocessed, err := h.Retry.Retry(c.Request.Context(), req.Limit)
	if err != nil {
		log.Printf("[API] Retry failed: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retry failed"})
		return
	}

	log.Printf("[API] Retry completed: reprocessed=%d correlation_id=%s", reprocessed, correlationID)
	c.JSON(http.StatusOK, gin.H{"reprocessed": reprocessed})
}

func parseFilter(c *gin.Context) (store.Filter, error) {
	var f store.Filter
	f.Type = models.EventType(c.Query("type"))
	f.Source = models.EventSource(c.Query("source"))
	f.UserID = c.Query("user_id")

	if v := c.Query("processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, err
		}
		f.Processed = &b
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
