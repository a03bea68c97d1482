package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-responder/internal/models"
)

// GetLogs returns reply log entries, optionally for ?message_id=
func (h *Handlers) GetLogs(c *gin.Context) {
	logs, err := h.repo.ListLogs(c.Request.Context(), c.Query("message_id"), limitParam(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch logs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetReplies returns reply records, optionally filtered by ?status=
func (h *Handlers) GetReplies(c *gin.Context) {
	records, err := h.repo.ListReplies(c.Request.Context(), models.ReplyStatus(c.Query("status")), limitParam(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch replies",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetReply returns the reply record and every job for one source message
func (h *Handlers) GetReply(c *gin.Context) {
	ctx := c.Request.Context()
	messageID := c.Param("message_id")

	record, err := h.repo.GetRecord(ctx, messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to fetch reply", Code: http.StatusInternalServerError})
		return
	}
	jobs, err := h.queue.ListByMessage(ctx, messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to fetch jobs", Code: http.StatusInternalServerError})
		return
	}
	if record == nil && len(jobs) == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Reply not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, models.ReplyDetail{MessageID: messageID, Record: record, Jobs: jobs})
}

// GetStats returns job counts by status
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to fetch stats", Code: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, stats)
}
