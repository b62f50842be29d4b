package handlers

import (
	"net/http"

	"learnbot/internal/auth"
	"learnbot/internal/models"

	"github.com/gin-gonic/gin"
)

// GetHonorific returns how the bot addresses the caller
func (h *Handler) GetHonorific(c *gin.Context) {
	honorific, err := h.prefs.Honorific(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"honorific": honorific})
}

// SetHonorific changes how the bot addresses the caller
func (h *Handler) SetHonorific(c *gin.Context) {
	var request models.SetHonorificRequest
	if !h.bindJSON(c, &request) {
		return
	}

	prefs, err := h.prefs.SetHonorific(c.Request.Context(), auth.UserID(c), request.Honorific)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}
