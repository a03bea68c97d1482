package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-mail-responder/internal/models"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Mailbox:   h.mailboxName,
		Metrics:   make(map[string]string),
	}

	if err := h.db.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	if stats, err := h.queue.Stats(c.Request.Context()); err == nil {
		response.Metrics["jobs_pending"] = strconv.FormatInt(stats.Pending, 10)
		response.Metrics["jobs_in_flight"] = strconv.FormatInt(stats.InFlight, 10)
		response.Metrics["jobs_done"] = strconv.FormatInt(stats.Done, 10)
		response.Metrics["jobs_failed"] = strconv.FormatInt(stats.Failed, 10)
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
