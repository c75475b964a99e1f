package indicator

// SMMAState calculates the Smoothed Moving Average (Wilder's RMA).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMAState struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new streaming SMMA with the given period.
func NewSMMA(period int) *SMMAState {
	return &SMMAState{period: period}
}

func (s *SMMAState) Name() string { return "SMMA" }

func (s *SMMAState) Update(v float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	// Wilder-style smoothing
	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMAState) Value() float64 { return s.current }
func (s *SMMAState) Ready() bool    { return s.count >= s.period }

// Reset clears the SMMA state for reuse.
func (s *SMMAState) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
