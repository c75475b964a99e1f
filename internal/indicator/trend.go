package indicator

import "math"

// DMIResult holds the directional movement lines.
type DMIResult struct {
	Plus  []float64
	Minus []float64
	ADX   []float64
}

// DMI returns +DI, -DI and ADX using Wilder smoothing.
func DMI(high, low, close []float64, diLength, adxSmoothing int) DMIResult {
	n := len(close)
	if diLength <= 0 || adxSmoothing <= 0 || !usable(n, diLength+1) {
		return DMIResult{}
	}
	plusDM := nanSeries(n)
	minusDM := nanSeries(n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		plusDM[i], minusDM[i] = 0, 0
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	trur := rma(TrueRange(high, low, close, false), diLength)
	plus := zip(rma(plusDM, diLength), trur, func(dm, tr float64) float64 { return 100 * safeDiv(dm, tr) })
	minus := zip(rma(minusDM, diLength), trur, func(dm, tr float64) float64 { return 100 * safeDiv(dm, tr) })
	dx := zip(plus, minus, func(p, m float64) float64 {
		sum := p + m
		if sum == 0 {
			sum = 1
		}
		return math.Abs(p-m) / sum
	})
	return DMIResult{
		Plus:  plus,
		Minus: minus,
		ADX:   mapSeries(rma(dx, adxSmoothing), func(v float64) float64 { return 100 * v }),
	}
}

// Aroon returns the up and down lines over length+1 bars. Ties resolve to
// the most recent bar.
func Aroon(high, low []float64, length int) (up, down []float64) {
	n := len(high)
	if length <= 0 || !usable(n, length+1) || len(low) != n {
		return nil, nil
	}
	up, down = nanSeries(n), nanSeries(n)
	for i := length; i < n; i++ {
		hi, lo := i-length, i-length
		for j := i - length + 1; j <= i; j++ {
			if high[j] >= high[hi] {
				hi = j
			}
			if low[j] <= low[lo] {
				lo = j
			}
		}
		up[i] = 100 * float64(length-(i-hi)) / float64(length)
		down[i] = 100 * float64(length-(i-lo)) / float64(length)
	}
	return up, down
}

// Vortex returns VI+ and VI-.
func Vortex(high, low, close []float64, period int) (plus, minus []float64) {
	n := len(close)
	if period <= 0 || !usable(n, period+1) {
		return nil, nil
	}
	vmp := nanSeries(n)
	vmm := nanSeries(n)
	for i := 1; i < n; i++ {
		vmp[i] = math.Abs(high[i] - low[i-1])
		vmm[i] = math.Abs(low[i] - high[i-1])
	}
	str := Sum(TrueRange(high, low, close, true), period)
	plus = zip(Sum(vmp, period), str, safeDiv)
	minus = zip(Sum(vmm, period), str, safeDiv)
	return plus, minus
}

// PSAR returns the parabolic stop and reverse. The first bar is NaN; the
// initial direction follows close[1] vs close[0].
func PSAR(high, low, close []float64, start, inc, maxAccel float64) []float64 {
	n := len(close)
	if n < 2 || len(high) != n || len(low) != n {
		return nil
	}
	out := nanSeries(n)
	var result, extreme, accel float64
	var below bool
	for i := 1; i < n; i++ {
		firstTrendBar := false
		if i == 1 {
			if close[1] > close[0] {
				below = true
				extreme = high[1]
				result = low[0]
			} else {
				below = false
				extreme = low[1]
				result = high[0]
			}
			firstTrendBar = true
			accel = start
		}
		result += accel * (extreme - result)
		if below {
			if result > low[i] {
				firstTrendBar = true
				below = false
				result = math.Max(high[i], extreme)
				extreme = low[i]
				accel = start
			}
		} else if result < high[i] {
			firstTrendBar = true
			below = true
			result = math.Min(low[i], extreme)
			extreme = high[i]
			accel = start
		}
		if !firstTrendBar {
			if below {
				if high[i] > extreme {
					extreme = high[i]
					accel = math.Min(accel+inc, maxAccel)
				}
			} else if low[i] < extreme {
				extreme = low[i]
				accel = math.Min(accel+inc, maxAccel)
			}
		}
		if below {
			result = math.Min(result, low[i-1])
			if i > 1 {
				result = math.Min(result, low[i-2])
			}
		} else {
			result = math.Max(result, high[i-1])
			if i > 1 {
				result = math.Max(result, high[i-2])
			}
		}
		out[i] = result
	}
	return out
}

// SupertrendResult carries the trailing line and its direction
// (-1 uptrend, 1 downtrend, NaN during warmup).
type SupertrendResult struct {
	Trend     []float64
	Direction []float64
}

// Supertrend returns the ATR trailing stop around hl2.
func Supertrend(high, low, close []float64, factor float64, atrPeriod int) SupertrendResult {
	n := len(close)
	if !usable(n, atrPeriod) {
		return SupertrendResult{}
	}
	atr := rma(TrueRange(high, low, close, true), atrPeriod)
	trend := nanSeries(n)
	dir := nanSeries(n)
	var prevUpper, prevLower, prevTrend float64
	seeded := false
	for i := 0; i < n; i++ {
		if isNaN(atr[i]) {
			continue
		}
		mid := (high[i] + low[i]) / 2
		upper := mid + factor*atr[i]
		lower := mid - factor*atr[i]
		prevClose := math.NaN()
		if i > 0 {
			prevClose = close[i-1]
		}
		if seeded && !(lower > prevLower || prevClose < prevLower) {
			lower = prevLower
		}
		if seeded && !(upper < prevUpper || prevClose > prevUpper) {
			upper = prevUpper
		}
		var d float64
		switch {
		case !seeded:
			d = 1
		case prevTrend == prevUpper:
			d = 1
			if close[i] > upper {
				d = -1
			}
		default:
			d = -1
			if close[i] < lower {
				d = 1
			}
		}
		t := upper
		if d == -1 {
			t = lower
		}
		trend[i], dir[i] = t, d
		prevUpper, prevLower, prevTrend = upper, lower, t
		seeded = true
	}
	return SupertrendResult{Trend: trend, Direction: dir}
}

// IchimokuResult holds the five Ichimoku lines, already displaced.
type IchimokuResult struct {
	Conversion []float64
	Base       []float64
	LeadA      []float64
	LeadB      []float64
	Lagging    []float64
}

func donchianMid(high, low []float64, period int) []float64 {
	return zip(Highest(high, period), Lowest(low, period), func(h, l float64) float64 { return (h + l) / 2 })
}

// Ichimoku returns the cloud. Leading spans move forward and the lagging
// span moves back by displacement-1 bars; values beyond the input are dropped.
func Ichimoku(high, low, close []float64, conversion, base, spanB, displacement int) IchimokuResult {
	n := len(close)
	if !usable(n, conversion) || base <= 0 || spanB <= 0 || displacement <= 0 {
		return IchimokuResult{}
	}
	conv := donchianMid(high, low, conversion)
	bl := donchianMid(high, low, base)
	leadA := zip(conv, bl, func(a, b float64) float64 { return (a + b) / 2 })
	leadB := donchianMid(high, low, spanB)
	shift := displacement - 1
	return IchimokuResult{
		Conversion: conv,
		Base:       bl,
		LeadA:      Shift(leadA, shift),
		LeadB:      Shift(leadB, shift),
		Lagging:    Shift(close, -shift),
	}
}
