package indicator

// EMAState calculates Exponential Moving Average.
// O(1) per update with no window storage. The first value is the SMA of
// the first period inputs, which is how charting platforms seed it.
type EMAState struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new streaming EMA with the given period.
func NewEMA(period int) *EMAState {
	return &EMAState{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMAState) Name() string { return "EMA" }

func (e *EMAState) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMAState) Value() float64 { return e.current }
func (e *EMAState) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMAState) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
