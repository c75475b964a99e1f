package indicator

import (
	"math"
	"time"
)

// OBV returns on-balance volume starting from 0 on the first bar.
func OBV(close, volume []float64) []float64 {
	n := len(close)
	if n == 0 || len(volume) != n {
		return nil
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// MFI returns the money flow index of hlc3 over period bars.
func MFI(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	if period <= 0 || !usable(n, period+1) {
		return nil
	}
	pos := nanSeries(n)
	neg := nanSeries(n)
	prev := (high[0] + low[0] + close[0]) / 3
	for i := 1; i < n; i++ {
		tp := (high[i] + low[i] + close[i]) / 3
		pos[i], neg[i] = 0, 0
		switch {
		case tp > prev:
			pos[i] = volume[i] * tp
		case tp < prev:
			neg[i] = volume[i] * tp
		}
		prev = tp
	}
	return zip(Sum(pos, period), Sum(neg, period), rsiFrom)
}

// moneyFlowVolume is the close location value scaled by volume.
func moneyFlowVolume(high, low, close, volume []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		if high[i] == low[i] {
			continue
		}
		out[i] = ((close[i] - low[i]) - (high[i] - close[i])) / (high[i] - low[i]) * volume[i]
	}
	return out
}

// CMF returns the Chaikin money flow.
func CMF(high, low, close, volume []float64, period int) []float64 {
	if !usable(len(close), period) {
		return nil
	}
	return zip(Sum(moneyFlowVolume(high, low, close, volume), period), Sum(volume, period), safeDiv)
}

// ADL returns the accumulation/distribution line.
func ADL(high, low, close, volume []float64) []float64 {
	if len(close) == 0 {
		return nil
	}
	mfv := moneyFlowVolume(high, low, close, volume)
	out := make([]float64, len(mfv))
	acc := 0.0
	for i, v := range mfv {
		acc += v
		out[i] = acc
	}
	return out
}

// ChaikinOscillator returns EMA(fast) - EMA(slow) of the A/D line.
func ChaikinOscillator(high, low, close, volume []float64, fast, slow int) []float64 {
	if !usable(len(close), slow) || fast <= 0 {
		return nil
	}
	adl := ADL(high, low, close, volume)
	return sub(ema(adl, fast), ema(adl, slow))
}

// PVT returns the price volume trend starting from 0.
func PVT(close, volume []float64) []float64 {
	n := len(close)
	if n == 0 || len(volume) != n {
		return nil
	}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + safeDiv(close[i]-close[i-1], close[i-1])*volume[i]
	}
	return out
}

// Anchor selects the session boundary for anchored indicators.
type Anchor string

const (
	AnchorDay   Anchor = "D"
	AnchorWeek  Anchor = "W"
	AnchorMonth Anchor = "M"
)

// ParseAnchor maps user input to an Anchor, defaulting to AnchorDay.
func ParseAnchor(s string) Anchor {
	switch s {
	case "W", "w", "week", "Week":
		return AnchorWeek
	case "M", "m", "month", "Month":
		return AnchorMonth
	default:
		return AnchorDay
	}
}

// periodStart returns the UTC start of the anchor period containing t.
// Weeks start on Monday.
func periodStart(t int64, a Anchor) int64 {
	ts := time.Unix(t, 0).UTC()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	switch a {
	case AnchorWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset).Unix()
	case AnchorMonth:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
	default:
		return day.Unix()
	}
}

// VWAP returns the session-anchored VWAP as Basis with standard deviation
// bands at ±mult. Bars before any traded volume in a session are NaN.
func VWAP(times []int64, src, volume []float64, anchor Anchor, mult float64) Bands {
	n := len(src)
	if n == 0 || len(times) != n || len(volume) != n {
		return Bands{}
	}
	basis, upper, lower := nanSeries(n), nanSeries(n), nanSeries(n)
	var sumV, sumPV, sumP2V float64
	session := int64(math.MinInt64)
	for i := 0; i < n; i++ {
		if ps := periodStart(times[i], anchor); ps != session {
			session = ps
			sumV, sumPV, sumP2V = 0, 0, 0
		}
		sumV += volume[i]
		sumPV += src[i] * volume[i]
		sumP2V += src[i] * src[i] * volume[i]
		if sumV == 0 {
			continue
		}
		vw := sumPV / sumV
		dev := math.Sqrt(math.Max(sumP2V/sumV-vw*vw, 0))
		basis[i] = vw
		upper[i] = vw + mult*dev
		lower[i] = vw - mult*dev
	}
	return Bands{Upper: upper, Basis: basis, Lower: lower}
}
