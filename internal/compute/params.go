package compute

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"quantlab/internal/manifest"
	"quantlab/internal/model"
)

// Resolve fills every declared input of ind from raw, falling back to the
// manifest default. Numbers given as strings are parsed, numbers are clamped
// to the declared bounds and ints are rounded. Enum and source inputs must
// name a known option. Keys not declared by the manifest are dropped.
func Resolve(ind *manifest.Indicator, raw model.Params) (model.Params, error) {
	out := make(model.Params, len(ind.Inputs))
	for _, in := range ind.Inputs {
		v, ok := raw[in.Key]
		if !ok {
			v = in.DefaultValue()
		}
		cv, err := coerce(in, v)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Key, err)
		}
		out[in.Key] = cv
	}
	return out, nil
}

func coerce(in manifest.Input, v model.Value) (model.Value, error) {
	switch in.Type {
	case manifest.InputInt, manifest.InputFloat:
		f := v.Num
		if v.IsStr {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return model.Value{}, fmt.Errorf("%q is not a number", v.Str)
			}
			f = parsed
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return model.Value{}, fmt.Errorf("%v is not a finite number", f)
		}
		if in.Type == manifest.InputInt {
			f = math.Round(f)
		}
		if in.Min != nil && f < *in.Min {
			f = *in.Min
		}
		if in.Max != nil && f > *in.Max {
			f = *in.Max
		}
		return model.Num(f), nil

	case manifest.InputBool:
		if v.IsStr {
			b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
			if err != nil {
				return model.Value{}, fmt.Errorf("%q is not a boolean", v.Str)
			}
			return boolValue(b), nil
		}
		return boolValue(v.Num != 0), nil

	case manifest.InputSource:
		if !v.IsStr {
			return model.Value{}, fmt.Errorf("source must be a string, got %v", v.Num)
		}
		src, err := model.ParseSource(v.Str)
		if err != nil {
			return model.Value{}, err
		}
		return model.Str(string(src)), nil

	case manifest.InputString:
		s := strings.TrimSpace(v.String())
		for _, opt := range in.Options {
			if strings.EqualFold(opt, s) {
				return model.Str(opt), nil
			}
		}
		return model.Value{}, fmt.Errorf("%q is not one of %s", s, strings.Join(in.Options, ", "))
	}
	return model.Value{}, fmt.Errorf("unsupported input type %q", in.Type)
}

func boolValue(b bool) model.Value {
	if b {
		return model.Num(1)
	}
	return model.Num(0)
}

// params is a resolved parameter set; every declared key is present.
type params model.Params

func (p params) Int(key string) int             { return int(p[key].Num) }
func (p params) Float(key string) float64       { return p[key].Num }
func (p params) Str(key string) string          { return p[key].Str }
func (p params) Bool(key string) bool           { return p[key].Num != 0 }
func (p params) Source(key string) model.Source { return model.Source(p[key].Str) }
