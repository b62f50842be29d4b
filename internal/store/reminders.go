package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"learnbot/internal/models"
	"learnbot/internal/schedule"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	dueBatchSize = 500

	// createAttempts bounds the retries after a concurrent create took the same serial
	createAttempts = 3
)

var displayNamePattern = regexp.MustCompile(`^(.+?)\s*#(\d+)$`)

// Reminders is the reminder store
type Reminders struct {
	db     *gorm.DB
	policy *schedule.Policy
}

// NewReminders creates a reminder store computing fire times with policy
func NewReminders(db *gorm.DB, policy *schedule.Policy) *Reminders {
	return &Reminders{db: db, policy: policy}
}

// CreateParams describes a newly uploaded learning item
type CreateParams struct {
	OwnerID   string
	ServerID  string
	ItemName  string
	Frequency models.Frequency
	ImageRef  models.ImageRef
}

// FindDue returns every reminder with next_fire_at <= now across all owners and servers,
// ordered by owner, server, name and serial. Rows are read in primary-key batches so a
// large due set is never loaded in one query.
func (s *Reminders) FindDue(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	var (
		due   []models.Reminder
		batch []models.Reminder
	)
	result := s.db.WithContext(ctx).
		Where("next_fire_at <= ?", now.UTC()).
		FindInBatches(&batch, dueBatchSize, func(tx *gorm.DB, _ int) error {
			due = append(due, batch...)
			return nil
		})
	if result.Error != nil {
		return nil, translate("find due reminders", result.Error)
	}

	// batches follow the primary key, which says nothing about the item
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		if a.ServerID != b.ServerID {
			return a.ServerID < b.ServerID
		}
		if a.ItemName != b.ItemName {
			return a.ItemName < b.ItemName
		}
		return a.SerialNumber < b.SerialNumber
	})
	return due, nil
}

// NextSerialNumber returns one more than the number of items the owner already has
// under this name in the server
func (s *Reminders) NextSerialNumber(ctx context.Context, ownerID, serverID, itemName string) (int, error) {
	count, err := countByName(s.db.WithContext(ctx), ownerID, serverID, itemName)
	if err != nil {
		return 0, translate("count reminders", err)
	}
	return int(count) + 1, nil
}

// HasDuplicates reports whether more than one item shares the owner, server and name
func (s *Reminders) HasDuplicates(ctx context.Context, ownerID, serverID, itemName string) (bool, error) {
	count, err := countByName(s.db.WithContext(ctx), ownerID, serverID, itemName)
	if err != nil {
		return false, translate("count reminders", err)
	}
	return count > 1, nil
}

// Advance records a firing. Repeating it with the same arguments leaves the row unchanged.
func (s *Reminders) Advance(ctx context.Context, id string, nextFireAt, firedAt time.Time) error {
	fired := firedAt.UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_fire_at":  nextFireAt.UTC(),
			"last_fired_at": &fired,
		})
	if result.Error != nil {
		return translate("advance reminder", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("advance reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

// Create stores a new item, first firing one interval from now
func (s *Reminders) Create(ctx context.Context, params CreateParams) (*models.Reminder, error) {
	name := strings.TrimSpace(params.ItemName)
	if name == "" || params.OwnerID == "" || params.ServerID == "" {
		return nil, fmt.Errorf("create reminder: %w: owner, server and item name are required", ErrInvalidInput)
	}

	freq := params.Frequency
	if freq == "" {
		freq = models.FrequencyDaily
	}
	now := s.policy.Now()
	next, err := s.policy.NextFireAt(freq, now)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	serial, err := s.NextSerialNumber(ctx, params.OwnerID, params.ServerID, name)
	if err != nil {
		return nil, err
	}

	reminder := models.Reminder{
		OwnerID:      params.OwnerID,
		ServerID:     params.ServerID,
		ItemName:     name,
		SerialNumber: serial,
		Frequency:    freq,
		NextFireAt:   next.UTC(),
		ImageRef:     datatypes.NewJSONType(params.ImageRef),
		CreatedAt:    now.UTC(),
	}

	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Create(&reminder).Error
		if err == nil || !isDuplicate(err) || attempt == createAttempts {
			break
		}
		// a deleted item leaves a gap, or a concurrent upload took the serial
		highest, maxErr := maxSerial(s.db.WithContext(ctx), params.OwnerID, params.ServerID, name)
		if maxErr != nil {
			return nil, translate("create reminder", maxErr)
		}
		reminder.SerialNumber = highest + 1
		reminder.ID = ""
	}
	if err != nil {
		return nil, translate("create reminder", err)
	}
	return &reminder, nil
}

// Get loads a reminder by id
func (s *Reminders) Get(ctx context.Context, id string) (*models.Reminder, error) {
	var reminder models.Reminder
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error; err != nil {
		return nil, translate("get reminder", err)
	}
	return &reminder, nil
}

// Delete removes a reminder. Survivors keep their serial numbers.
func (s *Reminders) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Reminder{})
	if result.Error != nil {
		return translate("delete reminder", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("delete reminder %s: %w", id, ErrNotFound)
	}
	return nil
}

// Rename gives an item a new name and a fresh identity under it. The serial restarts
// at 1 unless the owner already has a "newName #1", in which case it follows the
// highest existing serial.
func (s *Reminders) Rename(ctx context.Context, id, newName string) (*models.Reminder, error) {
	name := strings.TrimSpace(newName)
	if name == "" {
		return nil, fmt.Errorf("rename reminder: %w: new name is required", ErrInvalidInput)
	}

	var reminder models.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&reminder).Error; err != nil {
			return err
		}
		if reminder.ItemName == name {
			return nil
		}

		serial, err := freeSerial(tx, reminder.OwnerID, reminder.ServerID, name, 1)
		if err != nil {
			return err
		}
		reminder.ItemName = name
		reminder.SerialNumber = serial
		return tx.Model(&models.Reminder{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"item_name":     name,
				"serial_number": serial,
			}).Error
	})
	if err != nil {
		return nil, translate("rename reminder", err)
	}
	return &reminder, nil
}

// ChangeFrequency switches an item to a new cadence measured from now
func (s *Reminders) ChangeFrequency(ctx context.Context, id string, freq models.Frequency, now time.Time) (*models.Reminder, error) {
	next, err := s.policy.NextFireAt(freq, now)
	if err != nil {
		return nil, fmt.Errorf("change frequency: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"frequency":    freq,
			"next_fire_at": next.UTC(),
		})
	if result.Error != nil {
		return nil, translate("change frequency", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("change frequency %s: %w", id, ErrNotFound)
	}
	return s.Get(ctx, id)
}

// FindByDisplayName resolves "Kanji" or "Kanji #2" among the items of ownerIDs in a server.
// Names match case-insensitively; without a serial the oldest match wins.
func (s *Reminders) FindByDisplayName(ctx context.Context, ownerIDs []string, serverID, input string) (*models.Reminder, error) {
	input = strings.TrimSpace(input)
	if input == "" || len(ownerIDs) == 0 {
		return nil, fmt.Errorf("find reminder: %w: item name is required", ErrInvalidInput)
	}

	if m := displayNamePattern.FindStringSubmatch(input); m != nil {
		serial, err := strconv.Atoi(m[2])
		if err == nil {
			reminder, err := s.findByName(ctx, ownerIDs, serverID, m[1], serial)
			if err == nil || !errors.Is(err, ErrNotFound) {
				return reminder, err
			}
		}
		// the "#N" may be part of the item name itself
	}
	return s.findByName(ctx, ownerIDs, serverID, input, 0)
}

func (s *Reminders) findByName(ctx context.Context, ownerIDs []string, serverID, name string, serial int) (*models.Reminder, error) {
	query := s.db.WithContext(ctx).
		Where("owner_id IN ? AND server_id = ? AND LOWER(item_name) = LOWER(?)", ownerIDs, serverID, name)
	if serial > 0 {
		query = query.Where("serial_number = ?", serial)
	}

	var reminder models.Reminder
	if err := query.Order("created_at, serial_number").First(&reminder).Error; err != nil {
		return nil, translate("find reminder", err)
	}
	return &reminder, nil
}

// ListFor lists the items of ownerIDs in a server as seen by viewerID, soonest first.
// Items owned by anyone other than the viewer are flagged as partner items.
func (s *Reminders) ListFor(ctx context.Context, viewerID string, ownerIDs []string, serverID string) ([]models.ReminderView, error) {
	if len(ownerIDs) == 0 {
		return []models.ReminderView{}, nil
	}

	var reminders []models.Reminder
	err := s.db.WithContext(ctx).
		Where("owner_id IN ? AND server_id = ?", ownerIDs, serverID).
		Order("next_fire_at, item_name, serial_number").
		Find(&reminders).Error
	if err != nil {
		return nil, translate("list reminders", err)
	}

	names := models.DisplayNames(reminders)
	views := make([]models.ReminderView, 0, len(reminders))
	for _, r := range reminders {
		views = append(views, models.ReminderView{
			Reminder:       r,
			DisplayName:    names[r.ID],
			FrequencyLabel: schedule.Label(r.Frequency),
			PartnerItem:    r.OwnerID != viewerID,
		})
	}
	return views, nil
}

// Archive moves a mastered item out of rotation
func (s *Reminders) Archive(ctx context.Context, id string, now time.Time) (*models.Archive, error) {
	var archive models.Archive
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reminder models.Reminder
		if err := tx.Where("id = ?", id).First(&reminder).Error; err != nil {
			return err
		}

		archive = models.Archive{
			OwnerID:           reminder.OwnerID,
			ServerID:          reminder.ServerID,
			ItemName:          reminder.ItemName,
			ImageRef:          reminder.ImageRef,
			OriginalFrequency: reminder.Frequency,
			ArchivedAt:        now.UTC(),
		}
		if err := tx.Create(&archive).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Reminder{}).Error
	})
	if err != nil {
		return nil, translate("archive reminder", err)
	}
	return &archive, nil
}

// Unarchive puts an archived item back into rotation. An empty freq restores the
// cadence it had when archived.
func (s *Reminders) Unarchive(ctx context.Context, archiveID string, freq models.Frequency, now time.Time) (*models.Reminder, error) {
	var reminder models.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var archive models.Archive
		if err := tx.Where("id = ?", archiveID).First(&archive).Error; err != nil {
			return err
		}

		f := freq
		if f == "" {
			f = archive.OriginalFrequency
		}
		if f == "" {
			f = models.FrequencyDaily
		}
		next, err := s.policy.NextFireAt(f, now)
		if err != nil {
			return err
		}

		count, err := countByName(tx, archive.OwnerID, archive.ServerID, archive.ItemName)
		if err != nil {
			return err
		}
		serial, err := freeSerial(tx, archive.OwnerID, archive.ServerID, archive.ItemName, int(count)+1)
		if err != nil {
			return err
		}

		reminder = models.Reminder{
			OwnerID:      archive.OwnerID,
			ServerID:     archive.ServerID,
			ItemName:     archive.ItemName,
			SerialNumber: serial,
			Frequency:    f,
			NextFireAt:   next.UTC(),
			ImageRef:     archive.ImageRef,
			CreatedAt:    now.UTC(),
		}
		if err := tx.Create(&reminder).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", archiveID).Delete(&models.Archive{}).Error
	})
	if err != nil {
		return nil, translate("unarchive reminder", err)
	}
	return &reminder, nil
}

// GetArchive loads an archive entry by id
func (s *Reminders) GetArchive(ctx context.Context, id string) (*models.Archive, error) {
	var archive models.Archive
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&archive).Error; err != nil {
		return nil, translate("get archive", err)
	}
	return &archive, nil
}

// ListArchives lists a user's archived items in a server, most recent first
func (s *Reminders) ListArchives(ctx context.Context, ownerID, serverID string) ([]models.Archive, error) {
	var archives []models.Archive
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND server_id = ?", ownerID, serverID).
		Order("archived_at DESC").
		Find(&archives).Error
	if err != nil {
		return nil, translate("list archives", err)
	}
	return archives, nil
}

// Stats counts a user's active and archived items in a server, with active items
// broken down by frequency
func (s *Reminders) Stats(ctx context.Context, ownerID, serverID string) (*models.LearningStats, error) {
	db := s.db.WithContext(ctx)

	var rows []struct {
		Frequency models.Frequency
		Count     int64
	}
	err := db.Model(&models.Reminder{}).
		Select("frequency, COUNT(*) AS count").
		Where("owner_id = ? AND server_id = ?", ownerID, serverID).
		Group("frequency").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("reminder stats", err)
	}

	var archived int64
	err = db.Model(&models.Archive{}).
		Where("owner_id = ? AND server_id = ?", ownerID, serverID).
		Count(&archived).Error
	if err != nil {
		return nil, translate("reminder stats", err)
	}

	stats := &models.LearningStats{
		Mastered:    archived,
		Frequencies: make(map[models.Frequency]int64, len(rows)),
	}
	for _, row := range rows {
		stats.Active += row.Count
		stats.Frequencies[row.Frequency] = row.Count
	}
	stats.Total = stats.Active + stats.Mastered
	return stats, nil
}

func countByName(db *gorm.DB, ownerID, serverID, itemName string) (int64, error) {
	var count int64
	err := db.Model(&models.Reminder{}).
		Where("owner_id = ? AND server_id = ? AND item_name = ?", ownerID, serverID, itemName).
		Count(&count).Error
	return count, err
}

func maxSerial(db *gorm.DB, ownerID, serverID, itemName string) (int, error) {
	var highest int
	err := db.Model(&models.Reminder{}).
		Select("COALESCE(MAX(serial_number), 0)").
		Where("owner_id = ? AND server_id = ? AND item_name = ?", ownerID, serverID, itemName).
		Scan(&highest).Error
	return highest, err
}

// freeSerial returns preferred if no item holds it under the name, otherwise the
// serial after the highest one in use
func freeSerial(db *gorm.DB, ownerID, serverID, itemName string, preferred int) (int, error) {
	var taken int64
	err := db.Model(&models.Reminder{}).
		Where("owner_id = ? AND server_id = ? AND item_name = ? AND serial_number = ?", ownerID, serverID, itemName, preferred).
		Count(&taken).Error
	if err != nil {
		return 0, err
	}
	if taken == 0 {
		return preferred, nil
	}

	highest, err := maxSerial(db, ownerID, serverID, itemName)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}
