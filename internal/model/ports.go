package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the indicator service from concrete storage
// implementations (SQLite, Redis).

// BarReader loads bars for backfill and on-demand compute.
type BarReader interface {
	// ReadBars returns bars for symbol/tf with from <= time <= to, ascending.
	// A zero "to" means no upper bound.
	ReadBars(ctx context.Context, symbol string, tf int, from, to int64) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter persists bars.
type BarWriter interface {
	// WriteBars upserts bars for symbol/tf in a single transaction.
	WriteBars(ctx context.Context, symbol string, tf int, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// ResultPublisher fans computed results out to other consumers.
type ResultPublisher interface {
	// Publish stores and announces a successful result.
	Publish(ctx context.Context, res *Result) error

	// Close releases underlying resources.
	Close() error
}
