package indicator

import "math"

// TrueRange returns max(high-low, |high-close[1]|, |low-close[1]|).
// When handleNA is true the first bar uses high-low; otherwise it is NaN.
func TrueRange(high, low, close []float64, handleNA bool) []float64 {
	n := len(close)
	out := nanSeries(n)
	if n == 0 || len(high) != n || len(low) != n {
		return out
	}
	if handleNA {
		out[0] = high[0] - low[0]
	}
	for i := 1; i < n; i++ {
		pc := close[i-1]
		out[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-pc), math.Abs(low[i]-pc)))
	}
	return out
}

// ATR returns the average true range (RMA of the true range).
func ATR(high, low, close []float64, period int) []float64 {
	if !usable(len(close), period) {
		return nil
	}
	return rma(TrueRange(high, low, close, true), period)
}

// StdDev returns the rolling population standard deviation.
func StdDev(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	return Stdev(src, period)
}

// Bands holds an upper/basis/lower triple.
type Bands struct {
	Upper []float64
	Basis []float64
	Lower []float64
}

// Bollinger returns SMA(period) ± mult * stdev(period).
func Bollinger(src []float64, period int, mult float64) Bands {
	if !usable(len(src), period) {
		return Bands{}
	}
	basis := sma(src, period)
	dev := Stdev(src, period)
	return Bands{
		Upper: zip(basis, dev, func(b, d float64) float64 { return b + mult*d }),
		Basis: basis,
		Lower: zip(basis, dev, func(b, d float64) float64 { return b - mult*d }),
	}
}

// BollingerWidth returns (upper - lower) / basis * 100.
func BollingerWidth(src []float64, period int, mult float64) []float64 {
	b := Bollinger(src, period, mult)
	if b.Basis == nil {
		return nil
	}
	out := nanSeries(len(src))
	for i := range out {
		if isNaN(b.Basis[i]) {
			continue
		}
		out[i] = 100 * safeDiv(b.Upper[i]-b.Lower[i], b.Basis[i])
	}
	return out
}

// BollingerPercentB returns (src - lower) / (upper - lower).
func BollingerPercentB(src []float64, period int, mult float64) []float64 {
	b := Bollinger(src, period, mult)
	if b.Basis == nil {
		return nil
	}
	out := nanSeries(len(src))
	for i := range out {
		if isNaN(b.Basis[i]) {
			continue
		}
		out[i] = safeDiv(src[i]-b.Lower[i], b.Upper[i]-b.Lower[i])
	}
	return out
}

// Keltner returns an EMA (or SMA) basis with ATR bands.
func Keltner(high, low, close, src []float64, period int, mult float64, atrPeriod int, exponential bool) Bands {
	if !usable(len(src), period) || atrPeriod <= 0 {
		return Bands{}
	}
	basis := sma(src, period)
	if exponential {
		basis = ema(src, period)
	}
	rng := rma(TrueRange(high, low, close, true), atrPeriod)
	return Bands{
		Upper: zip(basis, rng, func(b, r float64) float64 { return b + mult*r }),
		Basis: basis,
		Lower: zip(basis, rng, func(b, r float64) float64 { return b - mult*r }),
	}
}

// Donchian returns the highest high, lowest low and their midpoint.
func Donchian(high, low []float64, period int) Bands {
	if !usable(len(high), period) || len(low) != len(high) {
		return Bands{}
	}
	upper := Highest(high, period)
	lower := Lowest(low, period)
	return Bands{
		Upper: upper,
		Basis: zip(upper, lower, func(u, l float64) float64 { return (u + l) / 2 }),
		Lower: lower,
	}
}

// Envelope returns a moving average with fixed percentage bands.
func Envelope(src []float64, period int, percent float64, exponential bool) Bands {
	if !usable(len(src), period) {
		return Bands{}
	}
	basis := sma(src, period)
	if exponential {
		basis = ema(src, period)
	}
	k := percent / 100
	return Bands{
		Upper: mapSeries(basis, func(b float64) float64 { return b * (1 + k) }),
		Basis: basis,
		Lower: mapSeries(basis, func(b float64) float64 { return b * (1 - k) }),
	}
}

// HistoricalVolatility returns 100 * stdev(log returns) * sqrt(annual / per).
func HistoricalVolatility(close []float64, period int, annual, per float64) []float64 {
	if period <= 0 || !usable(len(close), period+1) || per <= 0 {
		return nil
	}
	logRet := nanSeries(len(close))
	for i := 1; i < len(close); i++ {
		if close[i] > 0 && close[i-1] > 0 {
			logRet[i] = math.Log(close[i] / close[i-1])
		}
	}
	scale := 100 * math.Sqrt(annual/per)
	return mapSeries(Stdev(logRet, period), func(v float64) float64 { return v * scale })
}

// Choppiness returns the choppiness index in [0, 100].
func Choppiness(high, low, close []float64, period int) []float64 {
	if !usable(len(close), period) || period < 2 {
		return nil
	}
	trSum := Sum(TrueRange(high, low, close, true), period)
	hh := Highest(high, period)
	ll := Lowest(low, period)
	out := nanSeries(len(close))
	logN := math.Log10(float64(period))
	for i := range out {
		if isNaN(trSum[i]) || isNaN(hh[i]) || isNaN(ll[i]) || hh[i] == ll[i] {
			continue
		}
		out[i] = 100 * math.Log10(trSum[i]/(hh[i]-ll[i])) / logN
	}
	return out
}
