package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/logger"
)

func NewRouter(log *logger.Logger, h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	router.GET("/healthz", HealthCheck)

	users := router.Group("/api/users/:userID")
	{
		users.GET("/plan", h.GetPlan)
		users.POST("/completions", h.CompleteOccurrence)
		users.GET("/tasks", h.ListTasks)
		users.POST("/tasks", h.CreateTask)
		users.DELETE("/tasks/:taskID", h.CancelTask)
		users.GET("/stats", h.Stats)
	}

	return router
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
