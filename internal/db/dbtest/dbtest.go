// Package dbtest opens migrated SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/models"
	"gorm.io/gorm"
)

// Open returns a migrated file-backed SQLite database under t.TempDir().
// The pool is capped at one connection so concurrent writers queue instead of
// failing with SQLITE_BUSY.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	return OpenFile(t, filepath.Join(t.TempDir(), "engine.db"))
}

// OpenFile is Open for an explicit database file. Opening the same path twice gives
// two independent single-connection pools that contend for the SQLite write lock.
func OpenFile(t *testing.T, path string) *gorm.DB {
	t.Helper()

	conn, errOpen := db.Open("file:" + path)
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// Competition inserts an active competition whose entry window spans now.
func Competition(t *testing.T, conn *gorm.DB, totalTickets, ticketPrice int64) models.Competition {
	t.Helper()

	now := time.Now().UTC()
	competition := models.Competition{
		Title:        "Test competition",
		Currency:     "GBP",
		TicketPrice:  ticketPrice,
		TotalTickets: totalTickets,
		Status:       models.CompetitionStatusActive,
		StartAt:      now.Add(-time.Hour),
		EndAt:        now.Add(time.Hour),
	}
	if errCreate := conn.Create(&competition).Error; errCreate != nil {
		t.Fatalf("create competition: %v", errCreate)
	}
	return competition
}

// User inserts a user row for the given external id.
func User(t *testing.T, conn *gorm.DB, externalID string) models.User {
	t.Helper()

	user := models.User{ExternalID: externalID}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}
