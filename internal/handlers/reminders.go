package handlers

import (
	"fmt"
	"net/http"

	"learnbot/internal/auth"
	"learnbot/internal/models"
	"learnbot/internal/schedule"
	"learnbot/internal/store"

	"github.com/gin-gonic/gin"
)

// CreateReminder registers a new learning item for the caller
func (h *Handler) CreateReminder(c *gin.Context) {
	var request models.CreateReminderRequest
	if !h.bindJSON(c, &request) {
		return
	}

	params := store.CreateParams{
		OwnerID:   auth.UserID(c),
		ServerID:  c.Param("server_id"),
		ItemName:  request.ItemName,
		Frequency: request.Frequency,
	}
	if request.ImageRef != nil {
		params.ImageRef = *request.ImageRef
	}

	reminder, err := h.reminders.Create(c.Request.Context(), params)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	dup, err := h.reminders.HasDuplicates(c.Request.Context(), reminder.OwnerID, reminder.ServerID, reminder.ItemName)
	if err != nil {
		h.log.Warnw("duplicate check failed after create", "reminder_id", reminder.ID, "err", err)
	}

	c.JSON(http.StatusCreated, h.view(c, *reminder, dup))
}

// ListReminders lists the caller's items and their partner's items in the server
func (h *Handler) ListReminders(c *gin.Context) {
	userID := auth.UserID(c)
	serverID := c.Param("server_id")

	owners, err := h.partnerships.AllRecipientsFor(c.Request.Context(), userID, serverID)
	if err != nil {
		h.log.Warnw("partner lookup failed, listing own items only", "user_id", userID, "err", err)
		owners = []string{userID}
	}

	views, err := h.reminders.ListFor(c.Request.Context(), userID, owners, serverID)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reminders": views, "count": len(views)})
}

// ViewReminder shows one item, addressed by ?item=, among the caller's and their partner's items
func (h *Handler) ViewReminder(c *gin.Context) {
	var request models.ItemRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		h.handleError(c, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	userID := auth.UserID(c)
	serverID := c.Param("server_id")
	owners, err := h.partnerships.AllRecipientsFor(c.Request.Context(), userID, serverID)
	if err != nil {
		h.log.Warnw("partner lookup failed, searching own items only", "user_id", userID, "err", err)
		owners = []string{userID}
	}

	reminder, err := h.reminders.FindByDisplayName(c.Request.Context(), owners, serverID, request.Item)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	dup, err := h.reminders.HasDuplicates(c.Request.Context(), reminder.OwnerID, reminder.ServerID, reminder.ItemName)
	if err != nil {
		h.log.Warnw("duplicate check failed", "reminder_id", reminder.ID, "err", err)
	}
	c.JSON(http.StatusOK, h.view(c, *reminder, dup))
}

// GetStats summarises the caller's progress in the server
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.reminders.Stats(c.Request.Context(), auth.UserID(c), c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RenameReminder renames one of the caller's items
func (h *Handler) RenameReminder(c *gin.Context) {
	var request models.RenameReminderRequest
	if !h.bindJSON(c, &request) {
		return
	}

	reminder, ok := h.ownItem(c, request.Item)
	if !ok {
		return
	}

	renamed, err := h.reminders.Rename(c.Request.Context(), reminder.ID, request.NewName)
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	dup, err := h.reminders.HasDuplicates(c.Request.Context(), renamed.OwnerID, renamed.ServerID, renamed.ItemName)
	if err != nil {
		h.log.Warnw("duplicate check failed after rename", "reminder_id", renamed.ID, "err", err)
	}
	c.JSON(http.StatusOK, h.view(c, *renamed, dup))
}

// ChangeFrequency moves one of the caller's items to a new cadence
func (h *Handler) ChangeFrequency(c *gin.Context) {
	var request models.ChangeFrequencyRequest
	if !h.bindJSON(c, &request) {
		return
	}

	reminder, ok := h.ownItem(c, request.Item)
	if !ok {
		return
	}

	updated, err := h.reminders.ChangeFrequency(c.Request.Context(), reminder.ID, request.Frequency, h.policy.Now())
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	dup, err := h.reminders.HasDuplicates(c.Request.Context(), updated.OwnerID, updated.ServerID, updated.ItemName)
	if err != nil {
		h.log.Warnw("duplicate check failed after frequency change", "reminder_id", updated.ID, "err", err)
	}
	c.JSON(http.StatusOK, h.view(c, *updated, dup))
}

// DeleteReminder removes one of the caller's items, addressed by ?item=
func (h *Handler) DeleteReminder(c *gin.Context) {
	var request models.ItemRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		h.handleError(c, http.StatusBadRequest, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	reminder, ok := h.ownItem(c, request.Item)
	if !ok {
		return
	}

	if err := h.reminders.Delete(c.Request.Context(), reminder.ID); err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": reminder.ID})
}

// ArchiveReminder moves one of the caller's mastered items out of rotation
func (h *Handler) ArchiveReminder(c *gin.Context) {
	var request models.ItemRequest
	if !h.bindJSON(c, &request) {
		return
	}

	reminder, ok := h.ownItem(c, request.Item)
	if !ok {
		return
	}

	archive, err := h.reminders.Archive(c.Request.Context(), reminder.ID, h.policy.Now())
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, archive)
}

// ListArchives lists the caller's archived items in the server
func (h *Handler) ListArchives(c *gin.Context) {
	archives, err := h.reminders.ListArchives(c.Request.Context(), auth.UserID(c), c.Param("server_id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives, "count": len(archives)})
}

// UnarchiveReminder puts one of the caller's archived items back into rotation
func (h *Handler) UnarchiveReminder(c *gin.Context) {
	var request models.UnarchiveRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &request) {
		return
	}

	archive, err := h.reminders.GetArchive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleStoreError(c, err)
		return
	}
	if archive.OwnerID != auth.UserID(c) {
		h.handleError(c, http.StatusNotFound, "Not found", fmt.Errorf("archive %s belongs to another user", archive.ID))
		return
	}

	reminder, err := h.reminders.Unarchive(c.Request.Context(), archive.ID, request.Frequency, h.policy.Now())
	if err != nil {
		h.handleStoreError(c, err)
		return
	}

	dup, err := h.reminders.HasDuplicates(c.Request.Context(), reminder.OwnerID, reminder.ServerID, reminder.ItemName)
	if err != nil {
		h.log.Warnw("duplicate check failed after unarchive", "reminder_id", reminder.ID, "err", err)
	}
	c.JSON(http.StatusOK, h.view(c, *reminder, dup))
}

// ownItem resolves a display name among the caller's own items in the server
func (h *Handler) ownItem(c *gin.Context, item string) (*models.Reminder, bool) {
	reminder, err := h.reminders.FindByDisplayName(c.Request.Context(), []string{auth.UserID(c)}, c.Param("server_id"), item)
	if err != nil {
		h.handleStoreError(c, err)
		return nil, false
	}
	return reminder, true
}

func (h *Handler) view(c *gin.Context, r models.Reminder, hasDuplicates bool) models.ReminderView {
	return models.ReminderView{
		Reminder:       r,
		DisplayName:    r.DisplayName(hasDuplicates),
		FrequencyLabel: schedule.Label(r.Frequency),
		PartnerItem:    r.OwnerID != auth.UserID(c),
	}
}
