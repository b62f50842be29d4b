package models

import "time"

// PartnershipStatus represents where an invitation is in its lifecycle
type PartnershipStatus string

const (
	PartnershipPending PartnershipStatus = "pending"
	PartnershipActive  PartnershipStatus = "active"
)

// Partnership pairs two study partners inside one server.
// UserA is the inviter, UserB the invitee.
type Partnership struct {
	ID         uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserA      string            `gorm:"size:32;not null;index" json:"user_a"`
	UserB      string            `gorm:"size:32;not null;index" json:"user_b"`
	ServerID   string            `gorm:"size:32;not null;index:idx_partnership_server_status" json:"server_id"`
	Status     PartnershipStatus `gorm:"size:10;not null;index:idx_partnership_server_status" json:"status"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
	AcceptedAt *time.Time        `json:"accepted_at,omitempty"`
}

// TableName specifies the table name for the Partnership model
func (Partnership) TableName() string {
	return "partnership"
}

// Other returns the side of the partnership that is not userID
func (p Partnership) Other(userID string) string {
	if p.UserA == userID {
		return p.UserB
	}
	return p.UserA
}

// InviteRequest represents a partnership invitation to another user
type InviteRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RespondInviteRequest identifies the invitation being accepted or declined
type RespondInviteRequest struct {
	InviterID string `json:"inviter_id" binding:"required"`
}
