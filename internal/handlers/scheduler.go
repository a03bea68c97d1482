package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-responder/internal/models"
)

// StartScheduler starts the fetch scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "scheduler_error", Message: err.Error(), Code: http.StatusConflict})
		return
	}
	c.Status(http.StatusOK)
}

// StopScheduler stops the fetch scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "scheduler_error", Message: err.Error(), Code: http.StatusInternalServerError})
		return
	}
	c.Status(http.StatusOK)
}

// RunOnce runs a fetch cycle and returns its result
func (h *Handlers) RunOnce(c *gin.Context) {
	result, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "fetch_failed", Message: err.Error(), Code: http.StatusBadGateway})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSchedulerStatus returns scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}
	last, lastErr := h.scheduler.LastResult()
	response := gin.H{
		"status":      status,
		"next_run":    h.scheduler.GetNextRun(),
		"last_run":    h.scheduler.GetLastRun(),
		"last_result": last,
	}
	if lastErr != nil {
		response["last_error"] = lastErr.Error()
	}
	c.JSON(http.StatusOK, response)
}
