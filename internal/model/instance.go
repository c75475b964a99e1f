package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a single indicator parameter: either a number or a string.
type Value struct {
	Num   float64
	Str   string
	IsStr bool
}

// Num wraps a numeric parameter.
func Num(v float64) Value { return Value{Num: v} }

// Str wraps a string parameter.
func Str(s string) Value { return Value{Str: s, IsStr: true} }

// String renders the value the way a user typed it.
func (v Value) String() string {
	if v.IsStr {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// MarshalJSON emits a bare JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsStr {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON accepts a JSON number, string or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Str(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Num(0)
		if b {
			*v = Num(1)
		}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parameter must be number or string: %w", err)
		}
		*v = Num(f)
	}
	return nil
}

// Params maps input keys (e.g. "length", "source") to values.
type Params map[string]Value

// StyleOverride adjusts how one output line is drawn. Zero fields keep the manifest default.
type StyleOverride struct {
	Color   string    `json:"color,omitempty"`
	Width   int       `json:"width,omitempty"`
	Style   LineStyle `json:"style,omitempty"`
	Visible *bool     `json:"visible,omitempty"`
}

// Instance is one indicator attached to a chart.
// Color and Styles are presentation only; they never influence computed values.
type Instance struct {
	ID     string                   `json:"id"`
	Kind   string                   `json:"kind"`
	Params Params                   `json:"params,omitempty"`
	Color  string                   `json:"color,omitempty"`
	Styles map[string]StyleOverride `json:"styles,omitempty"`
}

// BreadthPoint is one market-breadth sample aligned to a bar time.
type BreadthPoint struct {
	Time      int64   `json:"time"`
	Advances  float64 `json:"advances"`
	Declines  float64 `json:"declines"`
	Unchanged float64 `json:"unchanged,omitempty"`
}

// Aux carries optional datasets finer or wider than the primary bars.
type Aux struct {
	Intrabar []Bar          `json:"intrabar,omitempty"`
	Breadth  []BreadthPoint `json:"breadth,omitempty"`
}
