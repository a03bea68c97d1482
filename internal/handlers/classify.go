package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-responder/internal/composer"
	"smart-mail-responder/internal/models"
)

// ClassifyRequest is a dry-run classification of a message body
type ClassifyRequest struct {
	Body    string `json:"body" binding:"required"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
}

// ClassifyResponse is the category and the reply that would be sent
type ClassifyResponse struct {
	Category models.Category `json:"category"`
	Reply    string          `json:"reply"`
}

// Classify previews classification and composition without sending
func (h *Handlers) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	category, err := h.classifier.Classify(c.Request.Context(), req.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "classification_failed", Message: err.Error(), Code: http.StatusBadGateway})
		return
	}

	msg := models.RawMessage{Sender: req.Sender, Subject: req.Subject, Body: req.Body}
	reply, err := h.composer.Compose(category, composer.ContextFor(msg))
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "compose_failed", Message: err.Error(), Code: http.StatusInternalServerError})
		return
	}

	c.JSON(http.StatusOK, ClassifyResponse{Category: category, Reply: reply})
}
