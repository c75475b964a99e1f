package parity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"quantlab/internal/model"
)

// Golden is a recorded baseline for one indicator configuration.
type Golden struct {
	Kind   string                   `json:"kind"`
	Params model.Params             `json:"params,omitempty"`
	Seed   int64                    `json:"seed,omitempty"`
	Bars   int                      `json:"bars"`
	Lines  map[string][]model.Point `json:"lines"`
}

// GoldenFrom captures every line of a result.
func GoldenFrom(r *model.Result, params model.Params, seed int64, bars int) *Golden {
	g := &Golden{Kind: r.Kind, Params: params, Seed: seed, Bars: bars, Lines: make(map[string][]model.Point, len(r.Lines))}
	for _, l := range r.Lines {
		g.Lines[l.ID] = l.Values
	}
	return g
}

// Values returns one line of the baseline as a NaN-padded series.
func (g *Golden) Values(lineID string) []float64 {
	pts, ok := g.Lines[lineID]
	if !ok {
		return nil
	}
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

// SaveGolden writes g as indented JSON, creating parent directories.
func SaveGolden(path string, g *Golden) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal golden: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadGolden reads a baseline written by SaveGolden.
func LoadGolden(path string) (*Golden, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read golden: %w", err)
	}
	var g Golden
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse golden %s: %w", path, err)
	}
	return &g, nil
}
