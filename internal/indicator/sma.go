package indicator

// SMAState calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMAState struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new streaming SMA with the given period.
func NewSMA(period int) *SMAState {
	return &SMAState{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMAState) Name() string { return "SMA" }

func (s *SMAState) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMAState) Value() float64 { return s.current }
func (s *SMAState) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMAState) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
