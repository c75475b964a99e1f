package indicator

import "math"

// RSI returns the Relative Strength Index with Wilder smoothing.
// The first value appears at index period.
func RSI(src []float64, period int) []float64 {
	if period <= 0 || !usable(len(src), period+1) {
		return nil
	}
	return run(NewRSI(period), src)
}

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns EMA(fast) - EMA(slow), its EMA(signal) and their difference.
func MACD(src []float64, fast, slow, signal int) MACDResult {
	if !usable(len(src), slow) || !usable(len(src), fast) || signal <= 0 {
		return MACDResult{}
	}
	line := sub(ema(src, fast), ema(src, slow))
	sig := ema(line, signal)
	return MACDResult{MACD: line, Signal: sig, Histogram: sub(line, sig)}
}

// stochRaw is 100 * (src - lowest(low)) / (highest(high) - lowest(low)).
func stochRaw(src, high, low []float64, period int) []float64 {
	hh := Highest(high, period)
	ll := Lowest(low, period)
	out := nanSeries(len(src))
	for i := range src {
		if isNaN(hh[i]) || isNaN(ll[i]) || isNaN(src[i]) {
			continue
		}
		out[i] = 100 * safeDiv(src[i]-ll[i], hh[i]-ll[i])
	}
	return out
}

// Stochastic returns %K (smoothed by smoothK) and %D = SMA(%K, d).
func Stochastic(high, low, close []float64, kPeriod, smoothK, dPeriod int) (k, d []float64) {
	if !usable(len(close), kPeriod) || smoothK <= 0 || dPeriod <= 0 {
		return nil, nil
	}
	k = sma(stochRaw(close, high, low, kPeriod), smoothK)
	d = sma(k, dPeriod)
	return k, d
}

// StochRSI applies the stochastic formula to RSI values.
func StochRSI(src []float64, rsiPeriod, stochPeriod, smoothK, dPeriod int) (k, d []float64) {
	if rsiPeriod <= 0 || !usable(len(src), rsiPeriod+1) || stochPeriod <= 0 || smoothK <= 0 || dPeriod <= 0 {
		return nil, nil
	}
	r := run(NewRSI(rsiPeriod), src)
	k = sma(stochRaw(r, r, r, stochPeriod), smoothK)
	d = sma(k, dPeriod)
	return k, d
}

// CCI returns the Commodity Channel Index of src (typically hlc3).
func CCI(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	mean := sma(src, period)
	dev := MeanDev(src, period)
	out := nanSeries(len(src))
	for i := range src {
		if isNaN(mean[i]) || isNaN(dev[i]) {
			continue
		}
		out[i] = safeDiv(src[i]-mean[i], 0.015*dev[i])
	}
	return out
}

// WilliamsR returns Williams %R in the range [-100, 0].
func WilliamsR(high, low, close []float64, period int) []float64 {
	if !usable(len(close), period) {
		return nil
	}
	hh := Highest(high, period)
	ll := Lowest(low, period)
	out := nanSeries(len(close))
	for i := range close {
		if isNaN(hh[i]) || isNaN(ll[i]) {
			continue
		}
		out[i] = 100 * safeDiv(close[i]-hh[i], hh[i]-ll[i])
	}
	return out
}

// ROC returns the percentage rate of change over period bars.
func ROC(src []float64, period int) []float64 {
	if period <= 0 || !usable(len(src), period+1) {
		return nil
	}
	return roc(src, period)
}

func roc(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	for i := period; i < len(src); i++ {
		if isNaN(src[i]) || isNaN(src[i-period]) {
			continue
		}
		out[i] = 100 * safeDiv(src[i]-src[i-period], src[i-period])
	}
	return out
}

// Momentum returns src - src[period].
func Momentum(src []float64, period int) []float64 {
	if period <= 0 || !usable(len(src), period+1) {
		return nil
	}
	return Change(src, period)
}

// TRIX returns 10000 * change(EMA(EMA(EMA(log(src))))).
func TRIX(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	logSrc := mapSeries(src, func(v float64) float64 {
		if v <= 0 {
			return math.NaN()
		}
		return math.Log(v)
	})
	triple := ema(ema(ema(logSrc, period), period), period)
	return mapSeries(Change(triple, 1), func(v float64) float64 { return 10000 * v })
}

// TSI returns the True Strength Index and its signal line.
func TSI(src []float64, long, short, signal int) (tsi, sig []float64) {
	if long <= 0 || !usable(len(src), long+1) || short <= 0 || signal <= 0 {
		return nil, nil
	}
	pc := Change(src, 1)
	abs := mapSeries(pc, math.Abs)
	num := ema(ema(pc, long), short)
	den := ema(ema(abs, long), short)
	tsi = zip(num, den, func(n, d float64) float64 { return 100 * safeDiv(n, d) })
	return tsi, ema(tsi, signal)
}

// CMO returns the Chande Momentum Oscillator.
func CMO(src []float64, period int) []float64 {
	if period <= 0 || !usable(len(src), period+1) {
		return nil
	}
	m := Change(src, 1)
	up := mapSeries(m, func(v float64) float64 { return math.Max(v, 0) })
	down := mapSeries(m, func(v float64) float64 { return math.Max(-v, 0) })
	return zip(Sum(up, period), Sum(down, period), func(u, d float64) float64 {
		return 100 * safeDiv(u-d, u+d)
	})
}

// AwesomeOscillator returns SMA(hl2, fast) - SMA(hl2, slow).
func AwesomeOscillator(high, low []float64, fast, slow int) []float64 {
	if !usable(len(high), slow) || !usable(len(high), fast) || len(low) != len(high) {
		return nil
	}
	hl2 := zip(high, low, func(h, l float64) float64 { return (h + l) / 2 })
	return sub(sma(hl2, fast), sma(hl2, slow))
}

// UltimateOscillator combines buying pressure over three horizons.
func UltimateOscillator(high, low, close []float64, p1, p2, p3 int) []float64 {
	longest := max(p1, p2, p3)
	if !usable(len(close), longest+1) || min(p1, p2, p3) <= 0 {
		return nil
	}
	n := len(close)
	bp := nanSeries(n)
	tr := nanSeries(n)
	for i := 1; i < n; i++ {
		lo := math.Min(low[i], close[i-1])
		hi := math.Max(high[i], close[i-1])
		bp[i] = close[i] - lo
		tr[i] = hi - lo
	}
	avg := func(p int) []float64 { return zip(Sum(bp, p), Sum(tr, p), safeDiv) }
	a1, a2, a3 := avg(p1), avg(p2), avg(p3)
	out := nanSeries(n)
	for i := range out {
		if isNaN(a1[i]) || isNaN(a2[i]) || isNaN(a3[i]) {
			continue
		}
		out[i] = 100 * (4*a1[i] + 2*a2[i] + a3[i]) / 7
	}
	return out
}

// PPO returns the percentage price oscillator, its signal and histogram.
func PPO(src []float64, fast, slow, signal int) MACDResult {
	if !usable(len(src), slow) || !usable(len(src), fast) || signal <= 0 {
		return MACDResult{}
	}
	line := zip(ema(src, fast), ema(src, slow), func(f, s float64) float64 {
		return 100 * safeDiv(f-s, s)
	})
	sig := ema(line, signal)
	return MACDResult{MACD: line, Signal: sig, Histogram: sub(line, sig)}
}

// DPO returns the (non-centered) detrended price oscillator.
func DPO(src []float64, period int) []float64 {
	if !usable(len(src), period) {
		return nil
	}
	barsBack := period/2 + 1
	return sub(src, Shift(sma(src, period), barsBack))
}

// Coppock returns WMA(ROC(long) + ROC(short), wmaPeriod).
func Coppock(src []float64, wmaPeriod, longROC, shortROC int) []float64 {
	if !usable(len(src), max(longROC, shortROC)+1) || wmaPeriod <= 0 || min(longROC, shortROC) <= 0 {
		return nil
	}
	return wma(add(roc(src, longROC), roc(src, shortROC)), wmaPeriod)
}
