// Package compute is the dispatch registry: it resolves an indicator
// instance's parameters against the manifest, runs the kernel for its kind
// and assembles a rendering-ready result.
package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"quantlab/internal/indicator"
	"quantlab/internal/manifest"
	"quantlab/internal/model"
)

// ErrUnknownKind is returned for kinds without a kernel or manifest entry.
// Its text is surfaced verbatim in Result.Error.
var ErrUnknownKind = errors.New("Unknown indicator kind")

// Engine computes indicator results. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	manifest *manifest.Manifest
	kernels  map[Kind]kernelFunc

	// OnCompute, if set, is called after every dispatch with the kind, the
	// elapsed time and whether the result failed.
	OnCompute func(kind string, elapsed time.Duration, failed bool)
}

// NewEngine creates an engine over the given manifest.
func NewEngine(m *manifest.Manifest) *Engine {
	table := make(map[Kind]kernelFunc, len(kernels))
	for k, fn := range kernels {
		table[k] = fn
	}
	return &Engine{manifest: m, kernels: table}
}

// Manifest returns the catalogue the engine resolves parameters against.
func (e *Engine) Manifest() *manifest.Manifest { return e.manifest }

// lookup returns the manifest entry and kernel for kind.
func (e *Engine) lookup(kind string) (*manifest.Indicator, kernelFunc, error) {
	fn, ok := e.kernels[Kind(kind)]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	ind, ok := e.manifest.Lookup(kind)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return ind, fn, nil
}

// Normalize returns the instance's fully resolved parameters: defaults
// filled in, numbers clamped, undeclared keys dropped. Two instances whose
// normalized params are equal compute identical values.
func (e *Engine) Normalize(inst model.Instance) (model.Params, error) {
	ind, _, err := e.lookup(inst.Kind)
	if err != nil {
		return nil, err
	}
	return Resolve(ind, inst.Params)
}

// Compute runs inst over bars and applies the instance's presentation
// fields. It always returns a well-formed result: unknown kinds, bad
// parameters, kernel errors and kernel panics are all reported through
// Result.Error with empty lines.
func (e *Engine) Compute(inst model.Instance, bars []model.Bar, aux *model.Aux) *model.Result {
	return Style(inst, e.ComputeUnstyled(inst, bars, aux))
}

// ComputeUnstyled is Compute without the instance's Color and Styles: every
// manifest output is present with its manifest styling. The result depends
// only on id, kind, params and data, so it is what the cache stores.
func (e *Engine) ComputeUnstyled(inst model.Instance, bars []model.Bar, aux *model.Aux) (res *model.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("indicator kernel panic",
				"kind", inst.Kind, "id", inst.ID, "panic", r, "stack", string(debug.Stack()))
			res = model.ErrorResult(inst.ID, inst.Kind, fmt.Sprintf("%s: internal error: %v", inst.Kind, r))
		}
		if e.OnCompute != nil {
			e.OnCompute(inst.Kind, time.Since(start), res.Failed())
		}
	}()

	res, err := e.run(inst, bars, aux)
	if err != nil {
		return model.ErrorResult(inst.ID, inst.Kind, err.Error())
	}
	return res
}

func (e *Engine) run(inst model.Instance, bars []model.Bar, aux *model.Aux) (*model.Result, error) {
	ind, fn, err := e.lookup(inst.Kind)
	if err != nil {
		return nil, err
	}
	p, err := Resolve(ind, inst.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Kind, err)
	}
	out, err := fn(&input{bars: bars, cols: model.SplitColumns(bars), aux: aux, p: params(p)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Kind, err)
	}
	for id, v := range out.lines {
		if v != nil && len(v) != len(bars) {
			return nil, fmt.Errorf("%s: line %s has %d values for %d bars", inst.Kind, id, len(v), len(bars))
		}
	}
	if _, ok := ind.Input("offset"); ok {
		if off := p["offset"].Num; off != 0 {
			for id, v := range out.lines {
				if v != nil {
					out.lines[id] = indicator.Shift(v, int(off))
				}
			}
		}
	}
	return build(inst, ind, bars, out), nil
}

// build attaches manifest styling and timestamps to kernel output.
func build(inst model.Instance, ind *manifest.Indicator, bars []model.Bar, out output) *model.Result {
	res := &model.Result{
		ID:      inst.ID,
		Kind:    inst.Kind,
		Pane:    ind.Pane,
		Lines:   make([]model.Line, 0, len(ind.Outputs)),
		Fills:   ind.Fills,
		Bands:   ind.Bands,
		Markers: out.markers,
	}
	for _, o := range ind.Outputs {
		res.Lines = append(res.Lines, model.Line{
			ID:     o.ID,
			Label:  o.Label,
			Color:  o.Color,
			Style:  o.Style,
			Width:  o.Width,
			Values: points(bars, out.lines[o.ID]),
		})
	}
	for i := range res.Markers {
		if res.Markers[i].Color != "" {
			continue
		}
		res.Markers[i].Color = markerColor(ind, res.Markers[i].Position)
	}
	return res
}

// Style returns a copy of res with inst's primary color and per-line
// overrides applied. Lines and bands with visible=false are dropped, along
// with fills touching a hidden line. res is not modified; failed results are
// returned as they are.
func Style(inst model.Instance, res *model.Result) *model.Result {
	if res == nil || res.Failed() {
		return res
	}
	styled := *res
	styled.Lines = make([]model.Line, 0, len(res.Lines))
	styled.Fills = nil
	styled.Bands = nil

	visible := make(map[string]bool, len(res.Lines))
	for i, line := range res.Lines {
		ov := inst.Styles[line.ID]
		if hidden(ov) {
			continue
		}
		if i == 0 && inst.Color != "" {
			line.Color = inst.Color
		}
		if ov.Color != "" {
			line.Color = ov.Color
		}
		if ov.Width > 0 {
			line.Width = ov.Width
		}
		if ov.Style != "" {
			line.Style = ov.Style
		}
		styled.Lines = append(styled.Lines, line)
		visible[line.ID] = true
	}
	for _, f := range res.Fills {
		if visible[f.From] && visible[f.To] {
			styled.Fills = append(styled.Fills, f)
		}
	}
	for _, b := range res.Bands {
		ov := inst.Styles[b.ID]
		if hidden(ov) {
			continue
		}
		if ov.Color != "" {
			b.Color = ov.Color
		}
		if ov.Style != "" {
			b.Style = ov.Style
		}
		styled.Bands = append(styled.Bands, b)
	}
	return &styled
}

func hidden(ov model.StyleOverride) bool { return ov.Visible != nil && !*ov.Visible }

// markerColor picks the first output's color for "below" markers and the
// second output's for "above", so flip markers match the trend lines.
func markerColor(ind *manifest.Indicator, position string) string {
	idx := 0
	if position == "above" && len(ind.Outputs) > 1 {
		idx = 1
	}
	return ind.Outputs[idx].Color
}

// points pairs values with bar times. A nil series (insufficient input)
// becomes an empty line.
func points(bars []model.Bar, v []float64) []model.Point {
	if v == nil {
		return []model.Point{}
	}
	pts := make([]model.Point, len(v))
	for i := range v {
		pts[i] = model.Point{Time: bars[i].Time, Value: v[i]}
	}
	return pts
}
