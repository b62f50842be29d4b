package models

import (
	"time"

	"gorm.io/gorm"
)

// UserPreferences holds per-user settings used when addressing the user
type UserPreferences struct {
	UserID    string    `gorm:"primaryKey;size:32" json:"user_id"`
	Honorific string    `gorm:"size:50;not null" json:"honorific"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BeforeSave hook is called before saving the preferences
func (p *UserPreferences) BeforeSave(tx *gorm.DB) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return nil
}

// TableName specifies the table name for the UserPreferences model
func (UserPreferences) TableName() string {
	return "user_preferences"
}

// SetHonorificRequest changes how the bot addresses the caller
type SetHonorificRequest struct {
	Honorific string `json:"honorific" binding:"required,max=50"`
}

// All lists every model that AutoMigrate manages
func All() []interface{} {
	return []interface{}{
		&Reminder{},
		&Partnership{},
		&Archive{},
		&UserPreferences{},
	}
}
