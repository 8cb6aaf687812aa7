package db

import (
	"fmt"

	"github.com/rafflehq/ticket-engine/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the engine owns.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.Setting{},
		&models.Competition{},
		&models.TicketCounter{},
		&models.CompetitionEntry{},
		&models.EntryTicket{},
		&models.Prize{},
		&models.WinningTicket{},
		&models.PrizeLock{},
		&models.PrizeLockEvent{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.PaymentTransaction{},
		&models.Order{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return migrateIndexes(conn)
}

// migrateIndexes adds composite indexes that struct tags cannot express.
func migrateIndexes(conn *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_winning_tickets_lookup ON winning_tickets (competition_id, ticket_number, status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user_purchased ON competition_entries (user_id, purchased_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at)`,
	}
	for _, stmt := range stmts {
		if errExec := conn.Exec(stmt).Error; errExec != nil {
			return fmt.Errorf("db: migrate index: %w", errExec)
		}
	}
	return nil
}
