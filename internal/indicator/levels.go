package indicator

import "math"

// PivotType selects the pivot point formula.
type PivotType string

const (
	PivotTraditional PivotType = "traditional"
	PivotFibonacci   PivotType = "fibonacci"
	PivotWoodie      PivotType = "woodie"
	PivotCamarilla   PivotType = "camarilla"
)

// PivotLevels holds one series per level. Each bar carries the levels built
// from the previous anchor period; the first period is NaN.
type PivotLevels struct {
	P, R1, R2, R3, S1, S2, S3 []float64
}

type hlc struct{ high, low, close float64 }

func pivotsFor(typ PivotType, prev hlc, open float64) [7]float64 {
	h, l, c := prev.high, prev.low, prev.close
	r := h - l
	var p float64
	switch typ {
	case PivotFibonacci:
		p = (h + l + c) / 3
		return [7]float64{p, p + 0.382*r, p + 0.618*r, p + r, p - 0.382*r, p - 0.618*r, p - r}
	case PivotWoodie:
		p = (h + l + 2*open) / 4
		return [7]float64{p, 2*p - l, p + r, h + 2*(p-l), 2*p - h, p - r, l - 2*(h-p)}
	case PivotCamarilla:
		p = (h + l + c) / 3
		k := 1.1 * r
		return [7]float64{p, c + k/12, c + k/6, c + k/4, c - k/12, c - k/6, c - k/4}
	default:
		p = (h + l + c) / 3
		return [7]float64{p, 2*p - l, p + r, h + 2*(p-l), 2*p - h, p - r, l - 2*(h-p)}
	}
}

// Pivots returns pivot levels anchored to UTC day, week or month.
func Pivots(times []int64, open, high, low, close []float64, typ PivotType, anchor Anchor) PivotLevels {
	n := len(close)
	if n == 0 || len(times) != n {
		return PivotLevels{}
	}
	var lv [7][]float64
	for k := range lv {
		lv[k] = nanSeries(n)
	}
	var cur, prev hlc
	var current [7]float64
	havePrev := false
	session := int64(math.MinInt64)
	for i := 0; i < n; i++ {
		if ps := periodStart(times[i], anchor); ps != session {
			if session != math.MinInt64 {
				prev, havePrev = cur, true
			}
			session = ps
			cur = hlc{high[i], low[i], close[i]}
			if havePrev {
				current = pivotsFor(typ, prev, open[i])
			}
		}
		cur.high = math.Max(cur.high, high[i])
		cur.low = math.Min(cur.low, low[i])
		cur.close = close[i]
		if !havePrev {
			continue
		}
		for k := range lv {
			lv[k][i] = current[k]
		}
	}
	return PivotLevels{P: lv[0], R1: lv[1], R2: lv[2], R3: lv[3], S1: lv[4], S2: lv[5], S3: lv[6]}
}

// FibRatios are the retracement levels drawn by AutoFib.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// FibLevel is one horizontal retracement line.
type FibLevel struct {
	Ratio  float64
	Values []float64
}

// AutoFib draws retracement levels across the last lookback bars between the
// window's highest high and lowest low. When the high is the more recent
// extreme the move is up and ratio 0 sits at the high.
func AutoFib(high, low []float64, lookback int) []FibLevel {
	n := len(high)
	if !usable(n, 1) || len(low) != n || lookback <= 0 {
		return nil
	}
	if lookback > n {
		lookback = n
	}
	from := n - lookback
	hi, lo := from, from
	for i := from; i < n; i++ {
		if high[i] >= high[hi] {
			hi = i
		}
		if low[i] <= low[lo] {
			lo = i
		}
	}
	top, bottom := high[hi], low[lo]
	up := hi >= lo
	levels := make([]FibLevel, len(FibRatios))
	for k, r := range FibRatios {
		v := bottom + r*(top-bottom)
		if up {
			v = top - r*(top-bottom)
		}
		vals := nanSeries(n)
		for i := from; i < n; i++ {
			vals[i] = v
		}
		levels[k] = FibLevel{Ratio: r, Values: vals}
	}
	return levels
}
