package manifest

import (
	"strings"
	"testing"

	"quantlab/internal/model"
)

func TestLoad_Builtin(t *testing.T) {
	m, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	kinds := m.Kinds()
	if len(kinds) < 50 {
		t.Fatalf("kinds = %d, want at least 50", len(kinds))
	}
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Fatalf("kinds not sorted at %d: %q >= %q", i, kinds[i-1], kinds[i])
		}
	}
}

func TestLookup_SMA(t *testing.T) {
	m := MustLoad()
	ind, ok := m.Lookup("sma")
	if !ok {
		t.Fatal("sma missing")
	}
	if ind.Pane != model.PaneOverlay {
		t.Errorf("pane = %q, want overlay", ind.Pane)
	}
	in, ok := ind.Input("length")
	if !ok || in.Type != InputInt {
		t.Fatalf("length input = %+v, %v", in, ok)
	}
	if d := in.DefaultValue(); d.Num != 9 || d.IsStr {
		t.Errorf("length default = %v, want 9", d)
	}
	if in.Min == nil || *in.Min != 1 {
		t.Errorf("length min = %v, want 1", in.Min)
	}
	if src := ind.Defaults()["source"]; src.Str != "close" {
		t.Errorf("source default = %v, want close", src)
	}
	if _, ok := m.Lookup("nope"); ok {
		t.Error("unknown kind should not resolve")
	}
}

func TestLookup_SeparatePaneWithBands(t *testing.T) {
	ind, _ := MustLoad().Lookup("rsi")
	if ind.Pane != model.PaneSeparate {
		t.Errorf("rsi pane = %q", ind.Pane)
	}
	if len(ind.Bands) != 3 || ind.Bands[0].Value != 70 || ind.Bands[0].Style != model.StyleDashed {
		t.Errorf("rsi bands = %+v", ind.Bands)
	}
}

func TestLookup_DefaultsOfEveryType(t *testing.T) {
	m := MustLoad()
	kc, _ := m.Lookup("keltner")
	if v := kc.Defaults()["exponential"]; v.Num != 1 {
		t.Errorf("keltner exponential = %v, want 1", v)
	}
	alma, _ := m.Lookup("alma")
	if v := alma.Defaults()["alma_offset"]; v.Num != 0.85 {
		t.Errorf("alma offset = %v, want 0.85", v)
	}
	piv, _ := m.Lookup("pivots")
	in, _ := piv.Input("type")
	if in.Type != InputString || len(in.Options) != 4 {
		t.Errorf("pivots type input = %+v", in)
	}
	bb, _ := m.Lookup("bb")
	if len(bb.Fills) != 1 || bb.Fills[0].From != "upper" {
		t.Errorf("bb fills = %+v", bb.Fills)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"duplicate kind": `
- {kind: a, pane: overlay, outputs: [{id: main}]}
- {kind: a, pane: overlay, outputs: [{id: main}]}`,
		"bad pane": `
- {kind: a, pane: side, outputs: [{id: main}]}`,
		"no outputs": `
- {kind: a, pane: overlay, outputs: []}`,
		"default out of bounds": `
- kind: a
  pane: overlay
  inputs: [{key: length, type: int, default: 0, min: 1}]
  outputs: [{id: main}]`,
		"option missing": `
- kind: a
  pane: overlay
  inputs: [{key: mode, type: string, default: x, options: [y]}]
  outputs: [{id: main}]`,
		"fill unknown line": `
- kind: a
  pane: overlay
  outputs: [{id: main}]
  fills: [{from: main, to: other}]`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(strings.TrimSpace(doc))); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
