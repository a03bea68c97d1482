package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/queue"
	"smart-mail-responder/internal/worker"
)

// GetJobs lists reply jobs, optionally filtered by ?status=
func (h *Handlers) GetJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	switch status {
	case "", models.JobPending, models.JobInFlight, models.JobDone, models.JobFailed:
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_status", Message: "Unknown job status", Code: http.StatusBadRequest})
		return
	}

	jobs, err := h.queue.List(c.Request.Context(), status, limitParam(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch jobs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob returns a single job by ID
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Job not found", Code: http.StatusNotFound})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to fetch job", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RequeueJob moves a failed job back to pending
func (h *Handlers) RequeueJob(c *gin.Context) {
	job, err := worker.Requeue(c.Request.Context(), h.queue, h.repo, c.Param("id"))
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Job not found", Code: http.StatusNotFound})
	case errors.Is(err, queue.ErrNotRequeueable):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "not_requeueable", Message: err.Error(), Code: http.StatusConflict})
	case err != nil:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to requeue job", Code: http.StatusInternalServerError})
	default:
		c.JSON(http.StatusOK, job)
	}
}

func parsePositive(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
