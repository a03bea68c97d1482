package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"smart-mail-responder/internal/classifier"
	"smart-mail-responder/internal/composer"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/repository"
	"smart-mail-responder/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db          *gorm.DB
	queue       *queue.Queue
	repo        *repository.Repository
	scheduler   *scheduler.Scheduler
	classifier  classifier.Classifier
	composer    *composer.Composer
	mailboxName string
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, q *queue.Queue, repo *repository.Repository, s *scheduler.Scheduler,
	cls classifier.Classifier, comp *composer.Composer, mailboxName string) *Handlers {
	return &Handlers{
		db:          db,
		queue:       q,
		repo:        repo,
		scheduler:   s,
		classifier:  cls,
		composer:    comp,
		mailboxName: mailboxName,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/jobs", h.GetJobs)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/:id/requeue", h.RequeueJob)

		api.GET("/replies", h.GetReplies)
		api.GET("/replies/:message_id", h.GetReply)
		api.GET("/logs", h.GetLogs)
		api.GET("/stats", h.GetStats)

		api.POST("/classify", h.Classify)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

func limitParam(c *gin.Context, def int) int {
	limit := def
	if raw := c.Query("limit"); raw != "" {
		if n, err := parsePositive(raw); err == nil {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}
