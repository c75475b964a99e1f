package indicator

import "math"

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// usable reports whether a kernel has enough input to produce a series.
func usable(n, period int) bool {
	return n > 0 && period > 0 && period <= n
}

func isNaN(v float64) bool { return math.IsNaN(v) }

// safeDiv returns 0 when the denominator is zero and NaN when either side is NaN.
func safeDiv(num, den float64) float64 {
	if isNaN(num) || isNaN(den) {
		return math.NaN()
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// zip applies fn element-wise; NaN on either side propagates.
func zip(a, b []float64, fn func(x, y float64) float64) []float64 {
	out := nanSeries(len(a))
	for i := range a {
		if i >= len(b) || isNaN(a[i]) || isNaN(b[i]) {
			continue
		}
		out[i] = fn(a[i], b[i])
	}
	return out
}

func sub(a, b []float64) []float64 { return zip(a, b, func(x, y float64) float64 { return x - y }) }
func add(a, b []float64) []float64 { return zip(a, b, func(x, y float64) float64 { return x + y }) }

// mapSeries applies fn to every non-NaN value.
func mapSeries(src []float64, fn func(v float64) float64) []float64 {
	out := nanSeries(len(src))
	for i, v := range src {
		if !isNaN(v) {
			out[i] = fn(v)
		}
	}
	return out
}

// Change returns src[i] - src[i-length].
func Change(src []float64, length int) []float64 {
	out := nanSeries(len(src))
	for i := length; i < len(src); i++ {
		if isNaN(src[i]) || isNaN(src[i-length]) {
			continue
		}
		out[i] = src[i] - src[i-length]
	}
	return out
}

// Sum returns the rolling sum over period values. Any NaN in the window yields NaN.
func Sum(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	if period <= 0 {
		return out
	}
	sum := 0.0
	run := 0
	for i, v := range src {
		if isNaN(v) {
			sum, run = 0, 0
			continue
		}
		sum += v
		run++
		if run > period {
			sum -= src[i-period]
			run = period
		}
		if run == period {
			out[i] = sum
		}
	}
	return out
}

// Highest returns the rolling maximum over period values.
func Highest(src []float64, period int) []float64 {
	return rollingExtreme(src, period, func(a, b float64) bool { return a > b })
}

// Lowest returns the rolling minimum over period values.
func Lowest(src []float64, period int) []float64 {
	return rollingExtreme(src, period, func(a, b float64) bool { return a < b })
}

func rollingExtreme(src []float64, period int, better func(a, b float64) bool) []float64 {
	out := nanSeries(len(src))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(src); i++ {
		best := src[i-period+1]
		ok := !isNaN(best)
		for j := i - period + 2; ok && j <= i; j++ {
			if isNaN(src[j]) {
				ok = false
				break
			}
			if better(src[j], best) {
				best = src[j]
			}
		}
		if ok {
			out[i] = best
		}
	}
	return out
}

// Shift moves a series forward by offset bars (negative moves it back).
// Values pushed past either end are dropped; vacated slots are NaN.
func Shift(src []float64, offset int) []float64 {
	if offset == 0 {
		return src
	}
	out := nanSeries(len(src))
	for i, v := range src {
		j := i + offset
		if j >= 0 && j < len(src) {
			out[j] = v
		}
	}
	return out
}

// Stdev returns the rolling population standard deviation.
func Stdev(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	mean := sma(src, period)
	for i := range src {
		if isNaN(mean[i]) {
			continue
		}
		sq := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := src[j] - mean[i]
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}

// MeanDev returns the rolling mean absolute deviation around the SMA.
func MeanDev(src []float64, period int) []float64 {
	out := nanSeries(len(src))
	mean := sma(src, period)
	for i := range src {
		if isNaN(mean[i]) {
			continue
		}
		dev := 0.0
		for j := i - period + 1; j <= i; j++ {
			dev += math.Abs(src[j] - mean[i])
		}
		out[i] = dev / float64(period)
	}
	return out
}

// LinReg returns the least-squares line value at (period-1-offset) for each window.
func LinReg(src []float64, period, offset int) []float64 {
	out := nanSeries(len(src))
	if period <= 0 {
		return out
	}
	n := float64(period)
	sumX := n * (n - 1) / 2
	sumXX := n * (n - 1) * (2*n - 1) / 6
	den := n*sumXX - sumX*sumX
	for i := period - 1; i < len(src); i++ {
		sumY, sumXY := 0.0, 0.0
		ok := true
		for k := 0; k < period; k++ {
			y := src[i-period+1+k]
			if isNaN(y) {
				ok = false
				break
			}
			sumY += y
			sumXY += float64(k) * y
		}
		if !ok {
			continue
		}
		slope := 0.0
		if den != 0 {
			slope = (n*sumXY - sumX*sumY) / den
		}
		intercept := (sumY - slope*sumX) / n
		out[i] = intercept + slope*float64(period-1-offset)
	}
	return out
}
