package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Frequency is the named cadence a reminder repeats on
type Frequency string

const (
	FrequencyDaily      Frequency = "daily"
	FrequencyEvery2Days Frequency = "every2days"
	FrequencyEvery3Days Frequency = "every3days"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
)

// ImageRef points at the stored upload for an item: a message inside a storage channel
type ImageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Reminder is one learning item with a recurring notification schedule.
// (OwnerID, ServerID, ItemName, SerialNumber) identifies it for users.
type Reminder struct {
	ID           string                       `gorm:"primaryKey;size:36" json:"id"`
	OwnerID      string                       `gorm:"size:32;not null;uniqueIndex:idx_reminder_identity,priority:1" json:"owner_id"`
	ServerID     string                       `gorm:"size:32;not null;uniqueIndex:idx_reminder_identity,priority:2" json:"server_id"`
	ItemName     string                       `gorm:"size:200;not null;uniqueIndex:idx_reminder_identity,priority:3" json:"item_name"`
	SerialNumber int                          `gorm:"not null;uniqueIndex:idx_reminder_identity,priority:4" json:"serial_number"`
	Frequency    Frequency                    `gorm:"size:16;not null" json:"frequency"`
	NextFireAt   time.Time                    `gorm:"not null;index" json:"next_fire_at"`
	LastFiredAt  *time.Time                   `json:"last_fired_at,omitempty"`
	ImageRef     datatypes.JSONType[ImageRef] `json:"image_ref"`
	CreatedAt    time.Time                    `gorm:"not null" json:"created_at"`
}

// BeforeCreate fills the id and creation time when the caller left them empty
func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.SerialNumber == 0 {
		r.SerialNumber = 1
	}
	return nil
}

// TableName specifies the table name for the Reminder model
func (Reminder) TableName() string {
	return "reminder"
}

// DisplayName returns the item name, suffixed with "#N" when other items share it
func (r Reminder) DisplayName(hasDuplicates bool) string {
	if hasDuplicates {
		return fmt.Sprintf("%s #%d", r.ItemName, r.SerialNumber)
	}
	return r.ItemName
}

// DisplayNames computes display names for a list holding every item of its owners in one
// server, so duplicates can be counted from the list itself.
func DisplayNames(reminders []Reminder) map[string]string {
	counts := make(map[string]int)
	for _, r := range reminders {
		counts[r.OwnerID+"\x00"+r.ItemName]++
	}

	names := make(map[string]string, len(reminders))
	for _, r := range reminders {
		names[r.ID] = r.DisplayName(counts[r.OwnerID+"\x00"+r.ItemName] > 1)
	}
	return names
}

// CreateReminderRequest represents the data needed to register a new learning item
type CreateReminderRequest struct {
	ItemName  string    `json:"item_name" binding:"required,max=200"`
	Frequency Frequency `json:"frequency" binding:"omitempty,oneof=daily every2days every3days weekly biweekly monthly"`
	ImageRef  *ImageRef `json:"image_ref"`
}

// ItemRequest addresses an existing item by display name ("Kanji" or "Kanji #2")
type ItemRequest struct {
	Item string `json:"item" form:"item" binding:"required"`
}

// RenameReminderRequest represents a rename of an existing item
type RenameReminderRequest struct {
	Item    string `json:"item" binding:"required"`
	NewName string `json:"new_name" binding:"required,max=200"`
}

// ChangeFrequencyRequest represents a cadence change for an existing item
type ChangeFrequencyRequest struct {
	Item      string    `json:"item" binding:"required"`
	Frequency Frequency `json:"frequency" binding:"required,oneof=daily every2days every3days weekly biweekly monthly"`
}

// UnarchiveRequest optionally overrides the cadence restored from the archive
type UnarchiveRequest struct {
	Frequency Frequency `json:"frequency" binding:"omitempty,oneof=daily every2days every3days weekly biweekly monthly"`
}

// ReminderView is a reminder as listed to a user, including partner items
type ReminderView struct {
	Reminder
	DisplayName    string `json:"display_name"`
	FrequencyLabel string `json:"frequency_label"`
	PartnerItem    bool   `json:"partner_item"`
}
