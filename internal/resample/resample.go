// Package resample aggregates bars into a coarser timeframe. Buckets are
// aligned to multiples of the timeframe in Unix seconds, so daily buckets
// start at 00:00 UTC.
package resample

import (
	"fmt"

	"quantlab/internal/model"
)

// Builder folds an ascending bar stream into timeframe buckets in O(1) per
// bar. It is not safe for concurrent use.
type Builder struct {
	tf      int64
	bucket  int64 // bucket start = time - time%tf
	forming model.Bar
	started bool

	// OnStale, if set, is called for each bar rejected because it belongs
	// to a bucket older than the forming one.
	OnStale func(b model.Bar)
}

// New creates a builder for tf seconds.
func New(tf int64) (*Builder, error) {
	if tf <= 0 {
		return nil, fmt.Errorf("resample: timeframe must be positive, got %d", tf)
	}
	return &Builder{tf: tf}, nil
}

// Add merges b into the forming bucket. When b opens a new bucket the
// previous one is returned as finalized.
func (r *Builder) Add(b model.Bar) (done model.Bar, ok bool) {
	bucket := b.Time - floorMod(b.Time, r.tf)

	if r.started && bucket < r.bucket {
		if r.OnStale != nil {
			r.OnStale(b)
		}
		return model.Bar{}, false
	}

	if r.started && bucket > r.bucket {
		done, ok = r.forming, true
		r.started = false
	}

	if !r.started {
		r.bucket = bucket
		r.started = true
		r.forming = model.Bar{
			Time:   bucket,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		return done, ok
	}

	f := &r.forming
	f.High = max(f.High, b.High)
	f.Low = min(f.Low, b.Low)
	f.Close = b.Close
	f.Volume += b.Volume
	return done, ok
}

// Forming returns the partially built bucket, if any.
func (r *Builder) Forming() (model.Bar, bool) {
	return r.forming, r.started
}

// Flush returns the forming bucket and resets the builder.
func (r *Builder) Flush() (model.Bar, bool) {
	b, ok := r.forming, r.started
	r.started = false
	r.forming = model.Bar{}
	return b, ok
}

// Bars resamples a whole ascending series. The last bucket is included
// even if incomplete.
func Bars(bars []model.Bar, tf int64) ([]model.Bar, error) {
	r, err := New(tf)
	if err != nil {
		return nil, err
	}
	out := make([]model.Bar, 0, len(bars)/2+1)
	for _, b := range bars {
		if done, ok := r.Add(b); ok {
			out = append(out, done)
		}
	}
	if last, ok := r.Flush(); ok {
		out = append(out, last)
	}
	return out, nil
}

// floorMod is t mod tf rounded toward negative infinity, so bars before the
// epoch still align to bucket starts.
func floorMod(t, tf int64) int64 {
	m := t % tf
	if m < 0 {
		m += tf
	}
	return m
}
