package model

import (
	"fmt"
	"strings"
)

// Bar is a single OHLCV record. Time is the bar open in Unix seconds.
// Slices of bars are ascending by Time; consumers assume this and do not verify it.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Source selects the price field an indicator reads from each bar.
type Source string

const (
	SourceClose Source = "close"
	SourceOpen  Source = "open"
	SourceHigh  Source = "high"
	SourceLow   Source = "low"
	SourceHL2   Source = "hl2"
	SourceHLC3  Source = "hlc3"
	SourceOHLC4 Source = "ohlc4"
	SourceHLCC4 Source = "hlcc4"
)

// Sources lists every supported price source.
var Sources = []Source{
	SourceClose, SourceOpen, SourceHigh, SourceLow,
	SourceHL2, SourceHLC3, SourceOHLC4, SourceHLCC4,
}

// ParseSource resolves a case-insensitive source name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sources {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Of returns the selected price for one bar.
func (s Source) Of(b Bar) float64 {
	switch s {
	case SourceOpen:
		return b.Open
	case SourceHigh:
		return b.High
	case SourceLow:
		return b.Low
	case SourceHL2:
		return (b.High + b.Low) / 2
	case SourceHLC3:
		return (b.High + b.Low + b.Close) / 3
	case SourceOHLC4:
		return (b.Open + b.High + b.Low + b.Close) / 4
	case SourceHLCC4:
		return (b.High + b.Low + b.Close + b.Close) / 4
	default:
		return b.Close
	}
}

// Values extracts the selected price for every bar.
func (s Source) Values(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = s.Of(b)
	}
	return out
}

// Columns splits bars into parallel OHLCV slices.
type Columns struct {
	Time   []int64
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// SplitColumns returns the column view of bars.
func SplitColumns(bars []Bar) Columns {
	n := len(bars)
	c := Columns{
		Time:   make([]int64, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range bars {
		c.Time[i] = b.Time
		c.Open[i] = b.Open
		c.High[i] = b.High
		c.Low[i] = b.Low
		c.Close[i] = b.Close
		c.Volume[i] = b.Volume
	}
	return c
}
