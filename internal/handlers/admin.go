package handlers

import (
	"context"
	"net/http"

	"learnbot/internal/auth"

	"github.com/gin-gonic/gin"
)

// TriggerSweep runs one due-reminder pass immediately and returns its report.
// The pass is not tied to the request, so a disconnecting client does not cut it short.
func (h *Handler) TriggerSweep(c *gin.Context) {
	h.log.Infow("manual sweep requested", "by", auth.UserID(c))

	report, err := h.sweep.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.log.Errorw("manual sweep failed", "run_id", report.RunID, "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sweep failed", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExpireInvites deletes stale partnership invitations now
func (h *Handler) ExpireInvites(c *gin.Context) {
	removed, err := h.partnerships.ExpirePending(c.Request.Context())
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": removed})
}
