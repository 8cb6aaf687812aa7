package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// slowQueryThreshold flags statements that hold ticket counter or wallet rows for too long.
	slowQueryThreshold = 500 * time.Millisecond
	pingTimeout        = 5 * time.Second
)

// poolDefaults are applied right after opening; RunServer may override them from config.
type poolDefaults struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

var (
	postgresPool = poolDefaults{maxOpen: 25, maxIdle: 25, maxLifetime: 30 * time.Minute}
	sqlitePool   = poolDefaults{maxOpen: 4, maxIdle: 4, maxLifetime: time.Hour}
)

// sqliteParams are merged into every SQLite DSN unless already present.
var sqliteParams = map[string]string{
	"_busy_timeout": "5000",
	"_journal_mode": "WAL",
	"_foreign_keys": "on",
	"_synchronous":  "NORMAL",
}

// sqlitePragmas are executed on open; the driver does not honour every DSN parameter.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the database named by dsn. PostgreSQL sessions are pinned to UTC;
// everything else is treated as a SQLite path or file: URI.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}
	dialect, err := detectDialectFromDSN(trimmed)
	if err != nil {
		return nil, err
	}

	var (
		conn *gorm.DB
		pool poolDefaults
	)
	switch dialect {
	case DialectPostgres:
		conn, err = openPostgres(trimmed)
		pool = postgresPool
	case DialectSQLite:
		conn, err = openSQLite(trimmed)
		pool = sqlitePool
	default:
		err = fmt.Errorf("db: unsupported dialect: %s", dialect)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: sql handle: %w", errDB)
	}
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetConnMaxLifetime(pool.maxLifetime)

	if dialect == DialectSQLite {
		for _, pragma := range sqlitePragmas {
			if _, errExec := sqlDB.Exec(pragma); errExec != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("db: sqlite %s: %w", pragma, errExec)
			}
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if errPing := sqlDB.PingContext(pingCtx); errPing != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: ping %s: %w", dialect, errPing)
	}
	log.WithField("dialect", dialect).Debug("database connected")
	return conn, nil
}

// detectDialectFromDSN infers the dialect from a DSN string.
func detectDialectFromDSN(dsn string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, nil
	case strings.Contains(lower, "host="), strings.Contains(lower, "dbname="), strings.Contains(lower, "sslmode="):
		return DialectPostgres, nil
	case strings.HasPrefix(lower, "file:"), strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "sqlite3://"):
		return DialectSQLite, nil
	case !strings.Contains(lower, "://"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db: unsupported dsn scheme in %q", strings.SplitN(dsn, "://", 2)[0])
	}
}

func openPostgres(dsn string) (*gorm.DB, error) {
	cfg, errParse := pgx.ParseConfig(dsn)
	if errParse != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", errParse)
	}
	cfg.RuntimeParams["timezone"] = "UTC"
	sqlDB := stdlib.OpenDB(*cfg, stdlib.OptionAfterConnect(scanTimestampsAsUTC))

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open postgres: %w", err)
	}
	return conn, nil
}

// scanTimestampsAsUTC makes entry windows and ledger timestamps come back in UTC
// regardless of the host zone.
func scanTimestampsAsUTC(_ context.Context, conn *pgx.Conn) error {
	conn.TypeMap().RegisterType(&pgtype.Type{
		Name:  "timestamp",
		OID:   pgtype.TimestampOID,
		Codec: &pgtype.TimestampCodec{ScanLocation: time.UTC},
	})
	conn.TypeMap().RegisterType(&pgtype.Type{
		Name:  "timestamptz",
		OID:   pgtype.TimestamptzOID,
		Codec: &pgtype.TimestamptzCodec{ScanLocation: time.UTC},
	})
	return nil
}

func openSQLite(dsn string) (*gorm.DB, error) {
	normalized := withSQLiteParams(sqliteFileDSN(dsn))
	if path := sqlitePathFromDSN(normalized); path != "" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
				return nil, fmt.Errorf("db: create sqlite dir: %w", errMkdir)
			}
		}
	}
	conn, err := gorm.Open(sqlite.Open(normalized), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	return conn, nil
}

// sqliteFileDSN rewrites sqlite:// and sqlite3:// URLs as file: URIs.
func sqliteFileDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(lower, scheme) {
			return "file:" + trimmed[len(scheme):]
		}
	}
	return trimmed
}

// withSQLiteParams appends the default parameters the DSN does not set itself.
func withSQLiteParams(dsn string) string {
	present := map[string]bool{}
	if idx := strings.Index(dsn, "?"); idx >= 0 {
		for _, part := range strings.Split(strings.ToLower(dsn[idx+1:]), "&") {
			if key := strings.SplitN(part, "=", 2)[0]; key != "" {
				present[key] = true
			}
		}
	}
	var missing []string
	for key, value := range sqliteParams {
		if !present[key] {
			missing = append(missing, key+"="+value)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sort.Strings(missing)
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(missing, "&")
}

// sqlitePathFromDSN returns the database file path, or "" for in-memory databases.
func sqlitePathFromDSN(dsn string) string {
	path := strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(path), "file:") {
		path = strings.TrimPrefix(path[len("file:"):], "//")
	} else if strings.Contains(path, "://") {
		return ""
	}
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// Close releases the pool behind conn.
func Close(conn *gorm.DB) {
	if conn == nil {
		return
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
}
