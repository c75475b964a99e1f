package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Pane tells the renderer where an indicator is drawn.
type Pane string

const (
	PaneOverlay  Pane = "overlay"
	PaneSeparate Pane = "separate"
)

// LineStyle is a renderer hint for one output line.
type LineStyle string

const (
	StyleLine      LineStyle = "line"
	StyleDashed    LineStyle = "dashed"
	StyleDotted    LineStyle = "dotted"
	StyleHistogram LineStyle = "histogram"
	StyleStep      LineStyle = "step"
	StyleCircles   LineStyle = "circles"
	StyleArea      LineStyle = "area"
)

// Point is one (time, value) sample. A NaN Value means "absent" (warmup or
// undefined), which is distinct from a real zero and serializes as null.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Absent reports whether the point carries no value.
func (p Point) Absent() bool { return math.IsNaN(p.Value) || math.IsInf(p.Value, 0) }

// MarshalJSON writes absent values as null.
func (p Point) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 48)
	buf = append(buf, `{"time":`...)
	buf = strconv.AppendInt(buf, p.Time, 10)
	buf = append(buf, `,"value":`...)
	if p.Absent() {
		buf = append(buf, "null"...)
	} else {
		buf = strconv.AppendFloat(buf, p.Value, 'g', -1, 64)
	}
	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON reads null values back as NaN.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		Time  int64    `json:"time"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Time = raw.Time
	p.Value = math.NaN()
	if raw.Value != nil {
		p.Value = *raw.Value
	}
	return nil
}

// Line is one named output series.
type Line struct {
	ID     string    `json:"id"`
	Label  string    `json:"label"`
	Color  string    `json:"color"`
	Style  LineStyle `json:"style"`
	Width  int       `json:"width"`
	Values []Point   `json:"values"`
}

// Fill shades the area between two lines (or a line and a band).
type Fill struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Color string  `json:"color"`
	Alpha float64 `json:"alpha"`
}

// Marker annotates a single bar (e.g. a trend flip).
type Marker struct {
	Time     int64   `json:"time"`
	Position string  `json:"position"` // "above" | "below"
	Shape    string  `json:"shape"`
	Color    string  `json:"color"`
	Text     string  `json:"text,omitempty"`
	Price    float64 `json:"price,omitempty"`
}

// Band is a fixed horizontal level drawn in the indicator pane.
type Band struct {
	ID    string    `json:"id"`
	Value float64   `json:"value"`
	Color string    `json:"color"`
	Style LineStyle `json:"style"`
}

// Result is the rendering-ready output of one indicator instance.
// Results are never mutated after they are returned.
type Result struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Pane    Pane     `json:"pane"`
	Lines   []Line   `json:"lines"`
	Fills   []Fill   `json:"fills,omitempty"`
	Markers []Marker `json:"markers,omitempty"`
	Bands   []Band   `json:"bands,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Failed reports whether the result carries an error.
func (r *Result) Failed() bool { return r.Error != "" }

// Line returns the line with the given id, or nil.
func (r *Result) Line(id string) *Line {
	for i := range r.Lines {
		if r.Lines[i].ID == id {
			return &r.Lines[i]
		}
	}
	return nil
}

// JSON returns the JSON-encoded result. Non-finite values outside line
// points (marker prices, band levels) cannot be encoded and are an error.
func (r *Result) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// ErrorResult builds a well-formed result that carries only an error message.
func ErrorResult(id, kind, msg string) *Result {
	return &Result{ID: id, Kind: kind, Lines: []Line{}, Error: msg}
}
