package handlers

import (
	"net/http"

	"learnbot/internal/auth"
	"learnbot/internal/models"

	"github.com/gin-gonic/gin"
)

// InvitePartner invites another member of the server to study together
func (h *Handler) InvitePartner(c *gin.Context) {
	var request models.InviteRequest
	if !h.bindJSON(c, &request) {
		return
	}

	invite, err := h.partnerships.Invite(c.Request.Context(), auth.UserID(c), request.UserID, c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

// AcceptInvite accepts the invitation the given inviter sent the caller
func (h *Handler) AcceptInvite(c *gin.Context) {
	var request models.RespondInviteRequest
	if !h.bindJSON(c, &request) {
		return
	}

	partnership, err := h.partnerships.Accept(c.Request.Context(), auth.UserID(c), request.InviterID, c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, partnership)
}

// DeclineInvite rejects the invitation the given inviter sent the caller
func (h *Handler) DeclineInvite(c *gin.Context) {
	var request models.RespondInviteRequest
	if !h.bindJSON(c, &request) {
		return
	}

	if err := h.partnerships.Decline(c.Request.Context(), auth.UserID(c), request.InviterID, c.Param("server_id")); err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"declined": request.InviterID})
}

// LeavePartnership ends the caller's partnership in the server
func (h *Handler) LeavePartnership(c *gin.Context) {
	former, err := h.partnerships.Leave(c.Request.Context(), auth.UserID(c), c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"former_partner": former})
}

// GetPartner returns the caller's active partner in the server
func (h *Handler) GetPartner(c *gin.Context) {
	partner, ok, err := h.partnerships.ActivePartnerOf(c.Request.Context(), auth.UserID(c), c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active partner in this server"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"partner_id": partner})
}
