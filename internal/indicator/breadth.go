package indicator

import (
	"math"
	"sort"

	"quantlab/internal/model"
)

// AlignBreadth maps each bar time to the index of the latest breadth point at
// or before it, or -1 when none exists. points must be ascending by time.
func AlignBreadth(times []int64, points []model.BreadthPoint) []int {
	idx := make([]int, len(times))
	for i, t := range times {
		j := sort.Search(len(points), func(k int) bool { return points[k].Time > t })
		idx[i] = j - 1
	}
	return idx
}

// ADLine returns the cumulative advance/decline line sampled at bar times.
func ADLine(times []int64, points []model.BreadthPoint) []float64 {
	if len(times) == 0 || len(points) == 0 {
		return nil
	}
	cum := make([]float64, len(points))
	acc := 0.0
	for i, p := range points {
		acc += p.Advances - p.Declines
		cum[i] = acc
	}
	out := nanSeries(len(times))
	for i, j := range AlignBreadth(times, points) {
		if j >= 0 {
			out[i] = cum[j]
		}
	}
	return out
}

// ADRatio returns advances / declines sampled at bar times.
func ADRatio(times []int64, points []model.BreadthPoint) []float64 {
	if len(times) == 0 || len(points) == 0 {
		return nil
	}
	out := nanSeries(len(times))
	for i, j := range AlignBreadth(times, points) {
		if j >= 0 {
			out[i] = safeDiv(points[j].Advances, points[j].Declines)
		}
	}
	return out
}

// UpDownVolumeResult holds per-bar buying and selling volume. Down volume is
// negative; Delta is their sum.
type UpDownVolumeResult struct {
	Up    []float64
	Down  []float64
	Delta []float64
}

// UpDownVolume buckets lower-timeframe bars into chart bars. An intrabar bar
// belongs to the chart bar with the latest time at or before its own. Doji
// intrabars inherit direction from the previous intrabar close. Chart bars
// without any intrabar data stay NaN.
func UpDownVolume(bars, intrabar []model.Bar) UpDownVolumeResult {
	n := len(bars)
	if n == 0 || len(intrabar) == 0 {
		return UpDownVolumeResult{}
	}
	up, down, delta := nanSeries(n), nanSeries(n), nanSeries(n)
	prevClose := math.NaN()
	lastDir := 1.0
	j := 0
	for i := 0; i < n; i++ {
		end := int64(math.MaxInt64)
		if i+1 < n {
			end = bars[i+1].Time
		}
		for j < len(intrabar) && intrabar[j].Time < bars[i].Time {
			prevClose = intrabar[j].Close
			j++
		}
		var u, d float64
		seen := false
		for ; j < len(intrabar) && intrabar[j].Time < end; j++ {
			ib := intrabar[j]
			dir := lastDir
			switch {
			case ib.Close > ib.Open:
				dir = 1
			case ib.Close < ib.Open:
				dir = -1
			case !isNaN(prevClose) && ib.Close > prevClose:
				dir = 1
			case !isNaN(prevClose) && ib.Close < prevClose:
				dir = -1
			}
			if dir > 0 {
				u += ib.Volume
			} else {
				d -= ib.Volume
			}
			lastDir = dir
			prevClose = ib.Close
			seen = true
		}
		if seen {
			up[i], down[i], delta[i] = u, d, u+d
		}
	}
	return UpDownVolumeResult{Up: up, Down: down, Delta: delta}
}
