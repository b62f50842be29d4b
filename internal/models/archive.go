package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Archive is a mastered item that no longer fires
type Archive struct {
	ID                string                       `gorm:"primaryKey;size:36" json:"id"`
	OwnerID           string                       `gorm:"size:32;not null;index:idx_archive_owner_server,priority:1" json:"owner_id"`
	ServerID          string                       `gorm:"size:32;not null;index:idx_archive_owner_server,priority:2" json:"server_id"`
	ItemName          string                       `gorm:"size:200;not null" json:"item_name"`
	ImageRef          datatypes.JSONType[ImageRef] `json:"image_ref"`
	OriginalFrequency Frequency                    `gorm:"size:16" json:"original_frequency"`
	ArchivedAt        time.Time                    `gorm:"not null;index" json:"archived_at"`
}

// BeforeCreate hook is called before creating a new archive entry
func (a *Archive) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ArchivedAt.IsZero() {
		a.ArchivedAt = time.Now()
	}
	return nil
}

// TableName specifies the table name for the Archive model
func (Archive) TableName() string {
	return "archive"
}

// LearningStats summarises a user's progress in one server
type LearningStats struct {
	Active      int64               `json:"active"`
	Mastered    int64               `json:"mastered"`
	Total       int64               `json:"total"`
	Frequencies map[Frequency]int64 `json:"frequencies"`
}
