package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"eventpipeline/internal/store"
	"eventpipeline/pkg/middleware"
	"eventpipeline/pkg/models"
)

// UserHandler handles user-related HTTP requests. Writes do not touch the
// users table directly; they publish user.* events that the ingestion
// pipeline applies, so the broker stays the single write path.
type UserHandler struct {
	Users     *store.UserStore
	Publisher EventPublisher
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *store.UserStore, pub EventPublisher) *UserHandler {
	return &UserHandler{Users: users, Publisher: pub}
}

// CreateUser godoc
// @Summary      Create a new user
// @Description  Publishes a user.created event; the consumer applies it asynchronously
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request  body      models.CreateUserRequest  true  "Create user request"
// @Success      202      {object}  map[string]any
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := uuid.New().String()
	now := time.Now()
	msg := models.EventMessage{
		Type:   models.EventUserCreated,
		UserID: userID,
		Data: map[string]any{
			"id":    userID,
			"email": req.Email,
			"name":  req.Name,
		},
		Timestamp: &now,
	}

	partition, offset, err := h.Publisher.Send(models.TopicUserEvents, msg, "")
	if err != nil {
		log.Printf("[API] Error publishing user.created: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish event"})
		return
	}

	log.Printf("[API] user.created published: user=%s partition=%d offset=%d correlation_id=%s",
		userID, partition, offset, correlationID)
	c.JSON(http.StatusAccepted, gin.H{"id": userID, "email": req.Email, "name": req.Name})
}

// UpdateUser godoc
// @Summary      Update an existing user
// @Description  Publishes a user.updated event; the consumer applies it asynchronously
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "User ID"
// @Param        request  body      models.UpdateUserRequest  true  "Update user request"
// @Success      202      {object}  map[string]any
// @Failure      400      {object}  map[string]string
// @Failure      503      {object}  map[string]string
// @Router       /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	userID := c.Param("id")

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	msg := models.EventMessage{
		Type:   models.EventUserUpdated,
		UserID: userID,
		Data: map[string]any{
			"id":    userID,
			"email": req.Email,
			"name":  req.Name,
		},
		Timestamp: &now,
	}

	if _, _, err := h.Publisher.Send(models.TopicUserEvents, msg, ""); err != nil {
		log.Printf("[API] Error publishing user.updated: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish event"})
		return
	}

	log.Printf("[API] user.updated published: user=%s correlation_id=%s", userID, correlationID)
	c.JSON(http.StatusAccepted, gin.H{"id": userID})
}

// DeleteUser godoc
// @Summary      Delete a user
// @Description  Publishes a user.deleted event; the consumer deactivates the user asynchronously
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      202  {object}  map[string]any
// @Failure      503  {object}  map[string]string
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	userID := c.Param("id")

	now := time.Now()
	msg := models.EventMessage{
		Type:      models.EventUserDeleted,
		UserID:    userID,
		Data:      map[string]any{"id": userID},
		Timestamp: &now,
	}

	if _, _, err := h.Publisher.Send(models.TopicUserEvents, msg, ""); err != nil {
		log.Printf("[API] Error publishing user.deleted: %v correlation_id=%s", err, correlationID)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to publish event"})
		return
	}

	log.Printf("[API] user.deleted published: user=%s correlation_id=%s", userID, correlationID)
	c.JSON(http.StatusAccepted, gin.H{"id": userID})
}

// GetUser godoc
// @Summary      Get a user by ID
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.Users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers godoc
// @Summary      List all users
// @Tags         users
// @Produce      json
// @Success      200  {array}   models.User
// @Failure      500  {object}  map[string]string
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
