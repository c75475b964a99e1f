package sqlite

import (
	"context"
	"fmt"

	"quantlab/internal/model"
)

// ReadBars returns bars for symbol/tf with from <= time <= to, ordered by
// time ascending. A zero "to" means no upper bound.
func (s *BarStore) ReadBars(ctx context.Context, symbol string, tf int, from, to int64) ([]model.Bar, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts >= ?`
	args := []any{symbol, tf, from}
	if to != 0 {
		query += ` AND ts <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the distinct (symbol, tf) series held by the store.
func (s *BarStore) Symbols(ctx context.Context) (map[string][]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol, tf FROM bars ORDER BY symbol, tf`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int)
	for rows.Next() {
		var (
			sym string
			tf  int
		)
		if err := rows.Scan(&sym, &tf); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out[sym] = append(out[sym], tf)
	}
	return out, rows.Err()
}
