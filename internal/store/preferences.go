package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learnbot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Preferences stores how each user likes to be addressed
type Preferences struct {
	db               *gorm.DB
	defaultHonorific string
}

// NewPreferences creates a preference store falling back to defaultHonorific
func NewPreferences(db *gorm.DB, defaultHonorific string) *Preferences {
	return &Preferences{db: db, defaultHonorific: defaultHonorific}
}

// Honorific returns the user's chosen honorific, or the default if none is set
func (s *Preferences) Honorific(ctx context.Context, userID string) (string, error) {
	var prefs models.UserPreferences
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultHonorific, nil
	}
	if err != nil {
		return s.defaultHonorific, translate("get preferences", err)
	}
	return prefs.Honorific, nil
}

// SetHonorific stores the user's honorific, replacing any previous one
func (s *Preferences) SetHonorific(ctx context.Context, userID, honorific string) (*models.UserPreferences, error) {
	honorific = strings.TrimSpace(honorific)
	if userID == "" || honorific == "" {
		return nil, fmt.Errorf("set honorific: %w: user and honorific are required", ErrInvalidInput)
	}

	prefs := models.UserPreferences{UserID: userID, Honorific: honorific}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"honorific", "updated_at"}),
	}).Create(&prefs).Error
	if err != nil {
		return nil, translate("set honorific", err)
	}
	return &prefs, nil
}
