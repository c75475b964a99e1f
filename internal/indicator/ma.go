package indicator

import "math"

// ────────────────────────────────────────────────────────────
// Internal full-length helpers (never nil, NaN where undefined)
// ────────────────────────────────────────────────────────────

// sma restarts its window after a NaN, so a gap costs period-1 bars of warmup.
func sma(src []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(src))
	}
	out := nanSeries(len(src))
	s := NewSMA(period)
	for i, v := range src {
		if isNaN(v) {
			s.Reset()
			continue
		}
		s.Update(v)
		if s.Ready() {
			out[i] = s.Value()
		}
	}
	return out
}

// ema skips NaN inputs, so a series with a NaN warmup prefix is seeded from
// its first period valid values.
func ema(src []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(src))
	}
	return run(NewEMA(period), src)
}

func rma(src []float64, period int) []float64 {
	if period <= 0 {
		return nanSeries(len(src))
	}
	return run(NewSMMA(period), src)
}

func wma(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	if period <= 0 {
		return out
	}
	norm := float64(period*(period+1)) / 2
	for i := period - 1; i < len(src); i++ {
		sum := 0.0
		ok := true
		for k := 0; k < period; k++ {
			v := src[i-period+1+k]
			if isNaN(v) {
				ok = false
				break
			}
			sum += v * float64(k+1)
		}
		if ok {
			out[i] = sum / norm
		}
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Exported kernels
// ────────────────────────────────────────────────────────────

// SMA returns the simple moving average of src.
func SMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return sma(src, period)
}

// EMA returns the SMA-seeded exponential moving average of src.
func EMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return ema(src, period)
}

// RMA returns Wilder's smoothed moving average (alpha = 1/period).
func RMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return rma(src, period)
}

// SMMA is an alias of RMA, the name most charting tools use for it.
func SMMA(src []float64, period int) []float64 { return RMA(src, period) }

// WMA returns the linearly weighted moving average (newest weight = period).
func WMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return wma(src, period)
}

// VWMA returns the volume weighted moving average.
func VWMA(src, volume []float64, period int) []float64 {
	if !usable(len(src), period) || len(volume) != len(src) {
		return nil
	}
	pv := zip(src, volume, func(p, v float64) float64 { return p * v })
	return zip(sma(pv, period), sma(volume, period), safeDiv)
}

// DEMA returns 2*EMA - EMA(EMA).
func DEMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	e1 := ema(src, period)
	e2 := ema(e1, period)
	return zip(e1, e2, func(a, b float64) float64 { return 2*a - b })
}

// TEMA returns 3*EMA - 3*EMA(EMA) + EMA(EMA(EMA)).
func TEMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	e1 := ema(src, period)
	e2 := ema(e1, period)
	e3 := ema(e2, period)
	out := nanSeries(len(src))
	for i := range src {
		if isNaN(e1[i]) || isNaN(e2[i]) || isNaN(e3[i]) {
			continue
		}
		out[i] = 3*e1[i] - 3*e2[i] + e3[i]
	}
	return out
}

// HMA returns the Hull moving average: WMA(2*WMA(n/2) - WMA(n), sqrt(n)).
func HMA(src []float64, period int) []float64 {
	if !usable(len(src), period) || period < 2 {
		return nil
	}
	half := wma(src, period/2)
	full := wma(src, period)
	raw := zip(half, full, func(h, f float64) float64 { return 2*h - f })
	return wma(raw, int(math.Floor(math.Sqrt(float64(period)))))
}

// KAMA returns Kaufman's adaptive moving average. fast and slow are the
// smoothing periods of the efficiency ratio bounds (typically 2 and 30).
func KAMA(src []float64, period, fast, slow int) []float64 {
	if period <= 0 || !usable(len(src), period+1) || fast <= 0 || slow <= 0 {
		return nil
	}
	fastSC := 2.0 / float64(fast+1)
	slowSC := 2.0 / float64(slow+1)
	out := nanSeries(len(src))
	prev := src[period-1]
	for i := period; i < len(src); i++ {
		signal := math.Abs(src[i] - src[i-period])
		noise := 0.0
		for j := i - period + 1; j <= i; j++ {
			noise += math.Abs(src[j] - src[j-1])
		}
		er := 1.0
		if noise != 0 {
			er = signal / noise
		}
		sc := math.Pow(er*(fastSC-slowSC)+slowSC, 2)
		prev = prev + sc*(src[i]-prev)
		out[i] = prev
	}
	return out
}

// McGinley returns the McGinley dynamic, seeded with the EMA of src.
func McGinley(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	seed := ema(src, period)
	out := nanSeries(len(src))
	prev := math.NaN()
	for i, v := range src {
		switch {
		case isNaN(prev):
			prev = seed[i]
		case isNaN(v) || prev == 0:
			// hold
		default:
			prev = prev + (v-prev)/(float64(period)*math.Pow(v/prev, 4))
		}
		out[i] = prev
	}
	return out
}

// ALMA returns the Arnaud Legoux moving average.
func ALMA(src []float64, period int, offset, sigma float64) []float64 {
	if !usable(len(src), period) || sigma <= 0 {
		return nil
	}
	m := offset * float64(period-1)
	s := float64(period) / sigma
	weights := make([]float64, period)
	norm := 0.0
	for k := range weights {
		weights[k] = math.Exp(-(float64(k) - m) * (float64(k) - m) / (2 * s * s))
		norm += weights[k]
	}
	out := nanSeries(len(src))
	for i := period - 1; i < len(src); i++ {
		sum := 0.0
		ok := true
		for k := 0; k < period; k++ {
			v := src[i-period+1+k]
			if isNaN(v) {
				ok = false
				break
			}
			sum += v * weights[k]
		}
		if ok {
			out[i] = sum / norm
		}
	}
	return out
}

// LSMA returns the least squares moving average (linear regression end point).
func LSMA(src []float64, period, offset int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return LinReg(src, period, offset)
}

// TRIMA returns the triangular moving average, SMA(SMA(ceil(n/2)), floor(n/2)+1).
func TRIMA(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	first := (period + 1) / 2
	second := period/2 + 1
	return sma(sma(src, first), second)
}

// MAType selects the averaging kernel for composite indicators.
type MAType string

const (
	MASMA  MAType = "sma"
	MAEMA  MAType = "ema"
	MARMA  MAType = "rma"
	MAWMA  MAType = "wma"
	MAVWMA MAType = "vwma"
)

// MA dispatches to the average named by typ. Unknown types fall back to SMA.
// volume is only read for VWMA.
func MA(typ MAType, src, volume []float64, period int) []float64 {
	switch typ {
	case MAEMA:
		return ema(src, period)
	case MARMA:
		return rma(src, period)
	case MAWMA:
		return wma(src, period)
	case MAVWMA:
		if len(volume) == len(src) {
			pv := zip(src, volume, func(p, v float64) float64 { return p * v })
			return zip(sma(pv, period), sma(volume, period), safeDiv)
		}
		return sma(src, period)
	default:
		return sma(src, period)
	}
}
