package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Repository handles all database operations
type Repository struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// New creates a new Repository instance
func New(dataSourceName string, logger *zap.SugaredLogger) (*Repository, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA cache_size = -16000;",
		"PRAGMA wal_autocheckpoint = 1000;",
		"PRAGMA busy_timeout = 30000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warnw("Failed to set pragma", "pragma", pragma, "err", err)
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create tables: %w", err)
	}

	return &Repository{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Checkpoint performs a WAL checkpoint to reduce WAL file size.
func (r *Repository) Checkpoint(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
	if err != nil {
		r.logger.Warnw("Failed to checkpoint WAL", "err", err)
	}
	return err
}

// Ping checks the database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func createTables(db *sql.DB) error {
	overCapacityTable := `
	CREATE TABLE IF NOT EXISTS over_capacity (
		fid INTEGER PRIMARY KEY,
		capacity INTEGER NOT NULL,
		used INTEGER NOT NULL,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1
	);`

	if _, err := db.Exec(overCapacityTable); err != nil {
		return err
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_over_capacity_last_seen ON over_capacity(last_seen DESC);"); err != nil {
		return err
	}

	return nil
}
