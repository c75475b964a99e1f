package compute

import (
	"fmt"
	"math"

	"quantlab/internal/indicator"
	"quantlab/internal/model"
)

// series maps output line ids to values aligned with the input bars.
type series map[string][]float64

type output struct {
	lines   series
	markers []model.Marker
}

// input is everything a kernel may read. Params are already resolved.
type input struct {
	bars []model.Bar
	cols model.Columns
	aux  *model.Aux
	p    params
}

func (in *input) src(key string) []float64 { return in.p.Source(key).Values(in.bars) }

type kernelFunc func(in *input) (output, error)

func lines(s series) output { return output{lines: s} }

func single(v []float64) output { return lines(series{"main": v}) }

// sourceLength adapts the common (source, length) kernel shape.
func sourceLength(fn func([]float64, int) []float64) kernelFunc {
	return func(in *input) (output, error) {
		return single(fn(in.src("source"), in.p.Int("length"))), nil
	}
}

func bandLines(b indicator.Bands, basis string) output {
	return lines(series{"upper": b.Upper, basis: b.Basis, "lower": b.Lower})
}

// ── Moving averages ──────────────────────────────────────────

func kama(in *input) (output, error) {
	return single(indicator.KAMA(in.src("source"), in.p.Int("length"), in.p.Int("fast"), in.p.Int("slow"))), nil
}

func vwma(in *input) (output, error) {
	return single(indicator.VWMA(in.src("source"), in.cols.Volume, in.p.Int("length"))), nil
}

func alma(in *input) (output, error) {
	return single(indicator.ALMA(in.src("source"), in.p.Int("length"), in.p.Float("alma_offset"), in.p.Float("sigma"))), nil
}

func lsma(in *input) (output, error) {
	return single(indicator.LSMA(in.src("source"), in.p.Int("length"), in.p.Int("regression_offset"))), nil
}

// ── Channels and overlays ────────────────────────────────────

func bollinger(in *input) (output, error) {
	return bandLines(indicator.Bollinger(in.src("source"), in.p.Int("length"), in.p.Float("mult")), "basis"), nil
}

func keltner(in *input) (output, error) {
	c := in.cols
	b := indicator.Keltner(c.High, c.Low, c.Close, in.src("source"),
		in.p.Int("length"), in.p.Float("mult"), in.p.Int("atr_length"), in.p.Bool("exponential"))
	return bandLines(b, "basis"), nil
}

func donchian(in *input) (output, error) {
	return bandLines(indicator.Donchian(in.cols.High, in.cols.Low, in.p.Int("length")), "basis"), nil
}

func envelope(in *input) (output, error) {
	b := indicator.Envelope(in.src("source"), in.p.Int("length"), in.p.Float("percent"), in.p.Bool("exponential"))
	return bandLines(b, "basis"), nil
}

func psar(in *input) (output, error) {
	c := in.cols
	return single(indicator.PSAR(c.High, c.Low, c.Close, in.p.Float("start"), in.p.Float("increment"), in.p.Float("maximum"))), nil
}

// supertrend splits the trailing line by direction and marks every flip.
func supertrend(in *input) (output, error) {
	c := in.cols
	st := indicator.Supertrend(c.High, c.Low, c.Close, in.p.Float("factor"), in.p.Int("atr_length"))
	if st.Trend == nil {
		return lines(series{"up": nil, "down": nil}), nil
	}
	n := len(st.Trend)
	up, down := nanSlice(n), nanSlice(n)
	var markers []model.Marker
	for i := 0; i < n; i++ {
		switch st.Direction[i] {
		case -1:
			up[i] = st.Trend[i]
		case 1:
			down[i] = st.Trend[i]
		default:
			continue
		}
		if i == 0 || math.IsNaN(st.Direction[i-1]) || st.Direction[i-1] == st.Direction[i] {
			continue
		}
		if st.Direction[i] == -1 {
			markers = append(markers, model.Marker{Time: c.Time[i], Position: "below", Shape: "arrowUp", Text: "Buy", Price: st.Trend[i]})
		} else {
			markers = append(markers, model.Marker{Time: c.Time[i], Position: "above", Shape: "arrowDown", Text: "Sell", Price: st.Trend[i]})
		}
	}
	return output{lines: series{"up": up, "down": down}, markers: markers}, nil
}

func ichimoku(in *input) (output, error) {
	c := in.cols
	r := indicator.Ichimoku(c.High, c.Low, c.Close,
		in.p.Int("conversion"), in.p.Int("base"), in.p.Int("span_b"), in.p.Int("displacement"))
	return lines(series{
		"conversion": r.Conversion,
		"base":       r.Base,
		"lagging":    r.Lagging,
		"lead_a":     r.LeadA,
		"lead_b":     r.LeadB,
	}), nil
}

func vwap(in *input) (output, error) {
	b := indicator.VWAP(in.cols.Time, in.src("source"), in.cols.Volume,
		indicator.ParseAnchor(in.p.Str("anchor")), in.p.Float("band_mult"))
	return bandLines(b, "vwap"), nil
}

func pivots(in *input) (output, error) {
	c := in.cols
	lv := indicator.Pivots(c.Time, c.Open, c.High, c.Low, c.Close,
		indicator.PivotType(in.p.Str("type")), indicator.ParseAnchor(in.p.Str("anchor")))
	return lines(series{
		"p": lv.P, "r1": lv.R1, "r2": lv.R2, "r3": lv.R3, "s1": lv.S1, "s2": lv.S2, "s3": lv.S3,
	}), nil
}

func autoFib(in *input) (output, error) {
	s := series{}
	for _, lv := range indicator.AutoFib(in.cols.High, in.cols.Low, in.p.Int("lookback")) {
		s[fibLineID(lv.Ratio)] = lv.Values
	}
	return lines(s), nil
}

func fibLineID(ratio float64) string {
	return fmt.Sprintf("level_%d", int(math.Round(ratio*1000)))
}

// ── Oscillators ──────────────────────────────────────────────

func macd(in *input) (output, error) {
	m := indicator.MACD(in.src("source"), in.p.Int("fast"), in.p.Int("slow"), in.p.Int("signal"))
	return lines(series{"macd": m.MACD, "signal": m.Signal, "histogram": m.Histogram}), nil
}

func ppo(in *input) (output, error) {
	m := indicator.PPO(in.src("source"), in.p.Int("fast"), in.p.Int("slow"), in.p.Int("signal"))
	return lines(series{"ppo": m.MACD, "signal": m.Signal, "histogram": m.Histogram}), nil
}

func stoch(in *input) (output, error) {
	c := in.cols
	k, d := indicator.Stochastic(c.High, c.Low, c.Close, in.p.Int("k_length"), in.p.Int("k_smoothing"), in.p.Int("d_length"))
	return lines(series{"k": k, "d": d}), nil
}

func stochRSI(in *input) (output, error) {
	k, d := indicator.StochRSI(in.src("source"), in.p.Int("rsi_length"), in.p.Int("stoch_length"), in.p.Int("k"), in.p.Int("d"))
	return lines(series{"k": k, "d": d}), nil
}

func willR(in *input) (output, error) {
	return single(indicator.WilliamsR(in.cols.High, in.cols.Low, in.src("source"), in.p.Int("length"))), nil
}

func trix(in *input) (output, error) {
	return single(indicator.TRIX(in.cols.Close, in.p.Int("length"))), nil
}

func tsi(in *input) (output, error) {
	v, sig := indicator.TSI(in.src("source"), in.p.Int("long"), in.p.Int("short"), in.p.Int("signal"))
	return lines(series{"tsi": v, "signal": sig}), nil
}

func awesome(in *input) (output, error) {
	return single(indicator.AwesomeOscillator(in.cols.High, in.cols.Low, in.p.Int("fast"), in.p.Int("slow"))), nil
}

func ultimate(in *input) (output, error) {
	c := in.cols
	return single(indicator.UltimateOscillator(c.High, c.Low, c.Close, in.p.Int("fast"), in.p.Int("middle"), in.p.Int("slow"))), nil
}

func coppock(in *input) (output, error) {
	return single(indicator.Coppock(in.src("source"), in.p.Int("wma_length"), in.p.Int("long_roc"), in.p.Int("short_roc"))), nil
}

func bandWidth(in *input) (output, error) {
	return single(indicator.BollingerWidth(in.src("source"), in.p.Int("length"), in.p.Float("mult"))), nil
}

func percentB(in *input) (output, error) {
	return single(indicator.BollingerPercentB(in.src("source"), in.p.Int("length"), in.p.Float("mult"))), nil
}

func dmi(in *input) (output, error) {
	c := in.cols
	r := indicator.DMI(c.High, c.Low, c.Close, in.p.Int("di_length"), in.p.Int("adx_smoothing"))
	return lines(series{"adx": r.ADX, "plus": r.Plus, "minus": r.Minus}), nil
}

func adx(in *input) (output, error) {
	c := in.cols
	return single(indicator.DMI(c.High, c.Low, c.Close, in.p.Int("di_length"), in.p.Int("adx_smoothing")).ADX), nil
}

func aroon(in *input) (output, error) {
	up, down := indicator.Aroon(in.cols.High, in.cols.Low, in.p.Int("length"))
	return lines(series{"up": up, "down": down}), nil
}

func vortex(in *input) (output, error) {
	c := in.cols
	plus, minus := indicator.Vortex(c.High, c.Low, c.Close, in.p.Int("length"))
	return lines(series{"plus": plus, "minus": minus}), nil
}

func chop(in *input) (output, error) {
	c := in.cols
	return single(indicator.Choppiness(c.High, c.Low, c.Close, in.p.Int("length"))), nil
}

func atr(in *input) (output, error) {
	c := in.cols
	length := in.p.Int("length")
	typ := indicator.MAType(in.p.Str("smoothing"))
	if typ == indicator.MARMA {
		return single(indicator.ATR(c.High, c.Low, c.Close, length)), nil
	}
	if length > len(c.Close) {
		return single(nil), nil
	}
	return single(indicator.MA(typ, indicator.TrueRange(c.High, c.Low, c.Close, true), nil, length)), nil
}

func historicalVolatility(in *input) (output, error) {
	return single(indicator.HistoricalVolatility(in.cols.Close, in.p.Int("length"), in.p.Float("annual"), in.p.Float("per"))), nil
}

// ── Volume ───────────────────────────────────────────────────

func volume(in *input) (output, error) {
	return lines(series{
		"volume": in.cols.Volume,
		"ma":     indicator.SMA(in.cols.Volume, in.p.Int("ma_length")),
	}), nil
}

func obv(in *input) (output, error) {
	return single(indicator.OBV(in.cols.Close, in.cols.Volume)), nil
}

func mfi(in *input) (output, error) {
	c := in.cols
	return single(indicator.MFI(c.High, c.Low, c.Close, c.Volume, in.p.Int("length"))), nil
}

func cmf(in *input) (output, error) {
	c := in.cols
	return single(indicator.CMF(c.High, c.Low, c.Close, c.Volume, in.p.Int("length"))), nil
}

func adl(in *input) (output, error) {
	c := in.cols
	return single(indicator.ADL(c.High, c.Low, c.Close, c.Volume)), nil
}

func chaikin(in *input) (output, error) {
	c := in.cols
	return single(indicator.ChaikinOscillator(c.High, c.Low, c.Close, c.Volume, in.p.Int("fast"), in.p.Int("slow"))), nil
}

func pvt(in *input) (output, error) {
	return single(indicator.PVT(in.cols.Close, in.cols.Volume)), nil
}

// ── Auxiliary data ───────────────────────────────────────────
// Missing aux data is insufficient input, not an error: lines come back empty.

func breadth(in *input) []model.BreadthPoint {
	if in.aux == nil {
		return nil
	}
	return in.aux.Breadth
}

func adLine(in *input) (output, error) {
	return single(indicator.ADLine(in.cols.Time, breadth(in))), nil
}

func adRatio(in *input) (output, error) {
	return single(indicator.ADRatio(in.cols.Time, breadth(in))), nil
}

func upDownVolume(in *input) (output, error) {
	var intrabar []model.Bar
	if in.aux != nil {
		intrabar = in.aux.Intrabar
	}
	r := indicator.UpDownVolume(in.bars, intrabar)
	return lines(series{"up": r.Up, "down": r.Down, "delta": r.Delta}), nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
