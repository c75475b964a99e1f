package compute

import "quantlab/internal/indicator"

// Kind names an indicator implementation. The set is closed: every Kind has
// exactly one kernel in the kernels table and one manifest entry.
type Kind string

const (
	KindSMA      Kind = "sma"
	KindEMA      Kind = "ema"
	KindWMA      Kind = "wma"
	KindSMMA     Kind = "smma"
	KindDEMA     Kind = "dema"
	KindTEMA     Kind = "tema"
	KindHMA      Kind = "hma"
	KindKAMA     Kind = "kama"
	KindMcGinley Kind = "mcginley"
	KindVWMA     Kind = "vwma"
	KindALMA     Kind = "alma"
	KindLSMA     Kind = "lsma"
	KindTRIMA    Kind = "trima"

	KindBB         Kind = "bb"
	KindKeltner    Kind = "keltner"
	KindDonchian   Kind = "donchian"
	KindEnvelope   Kind = "envelope"
	KindPSAR       Kind = "psar"
	KindSupertrend Kind = "supertrend"
	KindIchimoku   Kind = "ichimoku"
	KindVWAP       Kind = "vwap"
	KindPivots     Kind = "pivots"
	KindFib        Kind = "fib"

	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindStoch     Kind = "stoch"
	KindStochRSI  Kind = "stochrsi"
	KindCCI       Kind = "cci"
	KindWillR     Kind = "willr"
	KindROC       Kind = "roc"
	KindMom       Kind = "mom"
	KindTRIX      Kind = "trix"
	KindTSI       Kind = "tsi"
	KindCMO       Kind = "cmo"
	KindAO        Kind = "ao"
	KindUO        Kind = "uo"
	KindPPO       Kind = "ppo"
	KindDPO       Kind = "dpo"
	KindCoppock   Kind = "coppock"
	KindBBW       Kind = "bbw"
	KindBBPercent Kind = "bbpercent"
	KindDMI       Kind = "dmi"
	KindADX       Kind = "adx"
	KindAroon     Kind = "aroon"
	KindVortex    Kind = "vortex"
	KindChop      Kind = "chop"
	KindATR       Kind = "atr"
	KindStdDev    Kind = "stddev"
	KindHV        Kind = "hv"

	KindVolume  Kind = "volume"
	KindOBV     Kind = "obv"
	KindMFI     Kind = "mfi"
	KindCMF     Kind = "cmf"
	KindADL     Kind = "adl"
	KindChaikin Kind = "chaikin"
	KindPVT     Kind = "pvt"

	KindADLine    Kind = "adline"
	KindADRatio   Kind = "adr"
	KindUpDownVol Kind = "updownvol"
)

// kernels is the static dispatch table.
var kernels = map[Kind]kernelFunc{
	KindSMA:      sourceLength(indicator.SMA),
	KindEMA:      sourceLength(indicator.EMA),
	KindWMA:      sourceLength(indicator.WMA),
	KindSMMA:     sourceLength(indicator.SMMA),
	KindDEMA:     sourceLength(indicator.DEMA),
	KindTEMA:     sourceLength(indicator.TEMA),
	KindHMA:      sourceLength(indicator.HMA),
	KindKAMA:     kama,
	KindMcGinley: sourceLength(indicator.McGinley),
	KindVWMA:     vwma,
	KindALMA:     alma,
	KindLSMA:     lsma,
	KindTRIMA:    sourceLength(indicator.TRIMA),

	KindBB:         bollinger,
	KindKeltner:    keltner,
	KindDonchian:   donchian,
	KindEnvelope:   envelope,
	KindPSAR:       psar,
	KindSupertrend: supertrend,
	KindIchimoku:   ichimoku,
	KindVWAP:       vwap,
	KindPivots:     pivots,
	KindFib:        autoFib,

	KindRSI:       sourceLength(indicator.RSI),
	KindMACD:      macd,
	KindStoch:     stoch,
	KindStochRSI:  stochRSI,
	KindCCI:       sourceLength(indicator.CCI),
	KindWillR:     willR,
	KindROC:       sourceLength(indicator.ROC),
	KindMom:       sourceLength(indicator.Momentum),
	KindTRIX:      trix,
	KindTSI:       tsi,
	KindCMO:       sourceLength(indicator.CMO),
	KindAO:        awesome,
	KindUO:        ultimate,
	KindPPO:       ppo,
	KindDPO:       sourceLength(indicator.DPO),
	KindCoppock:   coppock,
	KindBBW:       bandWidth,
	KindBBPercent: percentB,
	KindDMI:       dmi,
	KindADX:       adx,
	KindAroon:     aroon,
	KindVortex:    vortex,
	KindChop:      chop,
	KindATR:       atr,
	KindStdDev:    sourceLength(indicator.StdDev),
	KindHV:        historicalVolatility,

	KindVolume:  volume,
	KindOBV:     obv,
	KindMFI:     mfi,
	KindCMF:     cmf,
	KindADL:     adl,
	KindChaikin: chaikin,
	KindPVT:     pvt,

	KindADLine:    adLine,
	KindADRatio:   adRatio,
	KindUpDownVol: upDownVolume,
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kernels))
	for k := range kernels {
		out = append(out, k)
	}
	return out
}
