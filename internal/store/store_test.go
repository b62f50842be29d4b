package store

import (
	"testing"
	"time"

	"learnbot/internal/database"
	"learnbot/internal/schedule"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var testNow = time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newFakeClock() clock.FakeClock {
	fc := clock.NewFake()
	fc.Set(testNow)
	return fc
}

func newTestReminders(t *testing.T) (*Reminders, clock.FakeClock) {
	t.Helper()
	fc := newFakeClock()
	return NewReminders(newTestDB(t), schedule.NewPolicy(time.UTC, fc)), fc
}
