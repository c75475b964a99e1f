package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"quantlab/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite bar store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// BarStore persists OHLCV bars keyed by (symbol, tf, time). It implements
// model.BarReader and model.BarWriter.
type BarStore struct {
	db *sql.DB

	// OnCommit, if set, is called after each successful WriteBars
	// transaction with the number of bars and the commit latency.
	OnCommit func(n int, elapsed time.Duration)
}

var (
	_ model.BarReader = (*BarStore)(nil)
	_ model.BarWriter = (*BarStore)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *BarStore) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*BarStore, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers share the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &BarStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, tf, ts)
		);
	`)
	return err
}

// WriteBars upserts bars for symbol/tf in a single transaction. A bar with
// an existing (symbol, tf, time) replaces the stored one.
func (s *BarStore) WriteBars(ctx context.Context, symbol string, tf int, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, tf, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %d: %w", b.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	elapsed := time.Since(start)
	log.Printf("[sqlite] committed %d bars for %s/%d in %v", len(bars), symbol, tf, elapsed)
	if s.OnCommit != nil {
		s.OnCommit(len(bars), elapsed)
	}
	return nil
}

// LastBarTime returns the last stored bar time for symbol/tf.
// Returns 0 if no bars exist.
func (s *BarStore) LastBarTime(ctx context.Context, symbol string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (s *BarStore) Close() error {
	return s.db.Close()
}
