// Package parity holds the harness used to compare computed indicator
// series against reference values: deterministic bar fixtures, series
// extraction from results, tolerance comparison, bar-time lookup and golden
// baseline files.
package parity

import (
	"math"
	"math/rand"

	"quantlab/internal/model"
)

// DaySeconds is the step between daily fixture bars.
const DaySeconds int64 = 86400

// Fixture returns n bars following a seeded random walk starting at 100.
// The same seed always yields the same bars.
func Fixture(n int, seed, start, step int64) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	prev := 100.0
	for i := range bars {
		open := prev
		close := open * (1 + rng.NormFloat64()*0.01)
		if close <= 0 {
			close = open
		}
		high := math.Max(open, close) * (1 + math.Abs(rng.NormFloat64())*0.004)
		low := math.Min(open, close) * (1 - math.Abs(rng.NormFloat64())*0.004)
		bars[i] = model.Bar{
			Time:   start + int64(i)*step,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 1000 + math.Floor(rng.Float64()*9000),
		}
		prev = close
	}
	return bars
}

// Linear returns n bars whose close rises by slope per bar from base.
// High and low sit one unit either side of the close.
func Linear(n int, start, step int64, base, slope float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := base + slope*float64(i)
		bars[i] = model.Bar{
			Time:   start + int64(i)*step,
			Open:   c - slope/2,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// Closes returns the close column of bars.
func Closes(bars []model.Bar) []float64 {
	return model.SourceClose.Values(bars)
}
