package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// IsPostgres reports whether the connection uses PostgreSQL.
func IsPostgres(conn *gorm.DB) bool {
	return DialectName(conn) == DialectPostgres
}

// ForUpdate adds a row lock to the query when the dialect supports it.
// SQLite serializes writers at the database level, so the clause is skipped there.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SetLockTimeout bounds how long the current transaction waits for row locks.
// It is a no-op outside PostgreSQL.
func SetLockTimeout(tx *gorm.DB, d time.Duration) error {
	if !IsPostgres(tx) || d <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	if errExec := tx.Exec(stmt).Error; errExec != nil {
		return fmt.Errorf("db: set lock timeout: %w", errExec)
	}
	return nil
}
