// Package manifest exposes the static indicator catalogue: per kind its
// display names, pane policy, typed inputs with defaults and bounds, output
// lines with default styling, and horizontal bands and fills.
package manifest

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"quantlab/internal/model"
)

//go:embed manifest.yaml
var builtin []byte

// InputType is the declared type of an indicator input.
type InputType string

const (
	InputInt    InputType = "int"
	InputFloat  InputType = "float"
	InputBool   InputType = "bool"
	InputString InputType = "string"
	InputSource InputType = "source"
)

// Input describes one user-tunable parameter.
type Input struct {
	Key     string    `yaml:"key" json:"key"`
	Type    InputType `yaml:"type" json:"type"`
	Default any       `yaml:"default" json:"default"`
	Min     *float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Options []string  `yaml:"options,omitempty" json:"options,omitempty"`
}

// DefaultValue returns Default as a parameter value. Booleans map to 1/0.
func (in Input) DefaultValue() model.Value {
	switch d := in.Default.(type) {
	case int:
		return model.Num(float64(d))
	case float64:
		return model.Num(d)
	case bool:
		if d {
			return model.Num(1)
		}
		return model.Num(0)
	case string:
		return model.Str(d)
	default:
		return model.Num(0)
	}
}

// Output is the default presentation of one result line.
type Output struct {
	ID    string          `yaml:"id" json:"id"`
	Label string          `yaml:"label" json:"label"`
	Color string          `yaml:"color" json:"color"`
	Style model.LineStyle `yaml:"style" json:"style"`
	Width int             `yaml:"width" json:"width"`
}

// Indicator is the manifest entry for one kind.
type Indicator struct {
	Kind     string       `yaml:"kind" json:"kind"`
	Name     string       `yaml:"name" json:"name"`
	Short    string       `yaml:"short" json:"short"`
	Category string       `yaml:"category" json:"category"`
	Pane     model.Pane   `yaml:"pane" json:"pane"`
	Inputs   []Input      `yaml:"inputs" json:"inputs"`
	Outputs  []Output     `yaml:"outputs" json:"outputs"`
	Bands    []model.Band `yaml:"bands,omitempty" json:"bands,omitempty"`
	Fills    []model.Fill `yaml:"fills,omitempty" json:"fills,omitempty"`
}

// Input returns the input declared under key.
func (ind *Indicator) Input(key string) (Input, bool) {
	for _, in := range ind.Inputs {
		if in.Key == key {
			return in, true
		}
	}
	return Input{}, false
}

// Output returns the output declared under id.
func (ind *Indicator) Output(id string) (Output, bool) {
	for _, o := range ind.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return Output{}, false
}

// Defaults returns every input's default value.
func (ind *Indicator) Defaults() model.Params {
	p := make(model.Params, len(ind.Inputs))
	for _, in := range ind.Inputs {
		p[in.Key] = in.DefaultValue()
	}
	return p
}

// Manifest is an immutable kind → Indicator index.
type Manifest struct {
	byKind map[string]*Indicator
	kinds  []string
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var entries []Indicator
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m := &Manifest{byKind: make(map[string]*Indicator, len(entries))}
	for i := range entries {
		ind := &entries[i]
		if err := validate(ind); err != nil {
			return nil, err
		}
		if _, dup := m.byKind[ind.Kind]; dup {
			return nil, fmt.Errorf("manifest: duplicate kind %q", ind.Kind)
		}
		m.byKind[ind.Kind] = ind
		m.kinds = append(m.kinds, ind.Kind)
	}
	sort.Strings(m.kinds)
	return m, nil
}

func validate(ind *Indicator) error {
	if ind.Kind == "" {
		return fmt.Errorf("manifest: entry without kind")
	}
	if ind.Pane != model.PaneOverlay && ind.Pane != model.PaneSeparate {
		return fmt.Errorf("manifest %s: invalid pane %q", ind.Kind, ind.Pane)
	}
	if len(ind.Outputs) == 0 {
		return fmt.Errorf("manifest %s: no outputs", ind.Kind)
	}
	seen := make(map[string]bool)
	for _, in := range ind.Inputs {
		if seen[in.Key] {
			return fmt.Errorf("manifest %s: duplicate input %q", ind.Kind, in.Key)
		}
		seen[in.Key] = true
		switch in.Type {
		case InputInt, InputFloat:
			d := in.DefaultValue()
			if d.IsStr {
				return fmt.Errorf("manifest %s.%s: non-numeric default", ind.Kind, in.Key)
			}
			if (in.Min != nil && d.Num < *in.Min) || (in.Max != nil && d.Num > *in.Max) {
				return fmt.Errorf("manifest %s.%s: default %v outside bounds", ind.Kind, in.Key, d.Num)
			}
		case InputSource:
			if _, err := model.ParseSource(in.DefaultValue().Str); err != nil {
				return fmt.Errorf("manifest %s.%s: %w", ind.Kind, in.Key, err)
			}
		case InputString:
			if !contains(in.Options, in.DefaultValue().Str) {
				return fmt.Errorf("manifest %s.%s: default not among options", ind.Kind, in.Key)
			}
		case InputBool:
		default:
			return fmt.Errorf("manifest %s.%s: unknown input type %q", ind.Kind, in.Key, in.Type)
		}
	}
	for _, f := range ind.Fills {
		if _, ok := ind.Output(f.From); !ok {
			return fmt.Errorf("manifest %s: fill references unknown line %q", ind.Kind, f.From)
		}
		if _, ok := ind.Output(f.To); !ok {
			return fmt.Errorf("manifest %s: fill references unknown line %q", ind.Kind, f.To)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Lookup returns the entry for kind.
func (m *Manifest) Lookup(kind string) (*Indicator, bool) {
	ind, ok := m.byKind[kind]
	return ind, ok
}

// Kinds returns every kind in sorted order.
func (m *Manifest) Kinds() []string {
	out := make([]string, len(m.kinds))
	copy(out, m.kinds)
	return out
}

// All returns every entry sorted by kind.
func (m *Manifest) All() []*Indicator {
	out := make([]*Indicator, 0, len(m.kinds))
	for _, k := range m.kinds {
		out = append(out, m.byKind[k])
	}
	return out
}

var (
	loadOnce sync.Once
	loaded   *Manifest
	loadErr  error
)

// Load returns the embedded manifest, parsing it on first use.
func Load() (*Manifest, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(builtin)
	})
	return loaded, loadErr
}

// MustLoad is Load for package initialisation paths; it panics on a broken
// embedded manifest, which is a build defect.
func MustLoad() *Manifest {
	m, err := Load()
	if err != nil {
		panic(err)
	}
	return m
}
