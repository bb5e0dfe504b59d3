package api

import (
	"eventpipeline/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter creates and configures the Gin router.
func NewRouter(events *EventHandler, users *UserHandler) *gin.Engine {
	r := gin.Default()

	// Middleware
	r.Use(middleware.CorrelationID())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Event routes
	r.POST("/events", events.CreateEvent)
	r.POST("/events/publish", events.PublishEvent)
	r.GET("/events", events.ListEvents)
	r.GET("/events/stats", events.GetStats)
	r.POST("/events/retry", events.RetryEvents)
	r.GET("/events/:id", events.GetEvent)

	// User routes
	r.POST("/users", users.CreateUser)
	r.PUT("/users/:id", users.UpdateUser)
	r.DELETE("/users/:id", users.DeleteUser)
	r.GET("/users/:id", users.GetUser)
	r.GET("/users", users.ListUsers)

	return r
}
