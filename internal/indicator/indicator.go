// Package indicator provides technical indicator kernels over bar data.
//
// Two layers live here. The streaming types (SMA, EMA, SMMA, RSI) implement
// the Indicator interface and consume one value at a time. The batch kernels
// (exported functions over []float64) are built on them and on the rolling
// helpers in window.go; they are what the compute registry calls.
//
// Batch kernel conventions:
//   - the output has the same length as the input, warmup values are NaN;
//   - empty input, a non-positive period or a period longer than the input
//     returns nil (an empty series), never a panic;
//   - divisions by a zero range yield 0, matching common TA-Lib behaviour.
package indicator

import "math"

// Indicator is the interface for the streaming primitives.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}

// run drives a streaming indicator across src. NaN inputs are skipped and
// produce NaN outputs; outputs before Ready are NaN.
func run(ind Indicator, src []float64) []float64 {
	out := nanSeries(len(src))
	for i, v := range src {
		if math.IsNaN(v) {
			continue
		}
		ind.Update(v)
		if ind.Ready() {
			out[i] = ind.Value()
		}
	}
	return out
}
