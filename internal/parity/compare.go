package parity

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"quantlab/internal/model"
)

// Series returns the values of one result line, NaN where absent.
// A missing line yields nil.
func Series(r *model.Result, lineID string) []float64 {
	if r == nil {
		return nil
	}
	l := r.Line(lineID)
	if l == nil {
		return nil
	}
	out := make([]float64, len(l.Values))
	for i, p := range l.Values {
		out[i] = p.Value
		if p.Absent() {
			out[i] = math.NaN()
		}
	}
	return out
}

// Times returns the timestamps of one result line.
func Times(r *model.Result, lineID string) []int64 {
	if r == nil {
		return nil
	}
	l := r.Line(lineID)
	if l == nil {
		return nil
	}
	out := make([]int64, len(l.Values))
	for i, p := range l.Values {
		out[i] = p.Time
	}
	return out
}

// Mismatch is one index where got and want disagree beyond tolerance.
type Mismatch struct {
	Index int
	Got   float64
	Want  float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%d] got %.8f want %.8f (diff %.3g)", m.Index, m.Got, m.Want, math.Abs(m.Got-m.Want))
}

// Compare reports every index where the series differ by more than tol.
// NaN matches NaN. When the lengths differ, the missing tail is compared
// as NaN.
func Compare(got, want []float64, tol float64) []Mismatch {
	n := len(got)
	if len(want) > n {
		n = len(want)
	}
	var out []Mismatch
	for i := 0; i < n; i++ {
		g, w := at(got, i), at(want, i)
		gn, wn := math.IsNaN(g), math.IsNaN(w)
		switch {
		case gn && wn:
			continue
		case gn != wn:
			out = append(out, Mismatch{Index: i, Got: g, Want: w})
		case math.Abs(g-w) > tol:
			out = append(out, Mismatch{Index: i, Got: g, Want: w})
		}
	}
	return out
}

// CompareFrom is Compare restricted to indices >= from.
func CompareFrom(got, want []float64, from int, tol float64) []Mismatch {
	var out []Mismatch
	for _, m := range Compare(got, want, tol) {
		if m.Index >= from {
			out = append(out, m)
		}
	}
	return out
}

// Summary renders at most limit mismatches for a test failure message.
func Summary(ms []Mismatch, limit int) string {
	var b strings.Builder
	for i, m := range ms {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more", len(ms)-limit)
			break
		}
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return math.NaN()
}

// IndexAt returns the index of the bar with time t, or -1.
func IndexAt(bars []model.Bar, t int64) int {
	i := sort.Search(len(bars), func(k int) bool { return bars[k].Time >= t })
	if i < len(bars) && bars[i].Time == t {
		return i
	}
	return -1
}

// IndexAtOrBefore returns the index of the latest bar with time <= t, or -1.
func IndexAtOrBefore(bars []model.Bar, t int64) int {
	return sort.Search(len(bars), func(k int) bool { return bars[k].Time > t }) - 1
}
