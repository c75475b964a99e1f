package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/model"
)

func openTestStore(t *testing.T) *BarStore {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "bars.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBars(n int, start int64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{Time: start + int64(i)*60, Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func TestBarStore_WriteRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bars := testBars(10, 1_700_000_000)

	var committed int
	s.OnCommit = func(n int, _ time.Duration) { committed += n }

	if err := s.WriteBars(ctx, "NIFTY", 60, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	if committed != 10 {
		t.Errorf("OnCommit saw %d bars, want 10", committed)
	}

	got, err := s.ReadBars(ctx, "NIFTY", 60, 0, 0)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != len(bars) {
		t.Fatalf("read %d bars, want %d", len(got), len(bars))
	}
	for i := range bars {
		if got[i] != bars[i] {
			t.Fatalf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}
}

func TestBarStore_RangeAndIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bars := testBars(10, 0)
	if err := s.WriteBars(ctx, "NIFTY", 60, bars); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBars(ctx, "NIFTY", 300, bars[:3]); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadBars(ctx, "NIFTY", 60, 120, 300)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0].Time != 120 || got[3].Time != 300 {
		t.Fatalf("range read = %+v", got)
	}

	other, _ := s.ReadBars(ctx, "NIFTY", 300, 0, 0)
	if len(other) != 3 {
		t.Fatalf("tf 300 has %d bars, want 3", len(other))
	}
	none, _ := s.ReadBars(ctx, "BANKNIFTY", 60, 0, 0)
	if len(none) != 0 {
		t.Fatalf("unknown symbol returned %d bars", len(none))
	}
}

func TestBarStore_UpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bars := testBars(3, 0)
	s.WriteBars(ctx, "X", 60, bars)

	fix := bars[1]
	fix.Close = 42
	if err := s.WriteBars(ctx, "X", 60, []model.Bar{fix}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ReadBars(ctx, "X", 60, 0, 0)
	if len(got) != 3 || got[1].Close != 42 {
		t.Fatalf("upsert result = %+v", got)
	}
}

func TestBarStore_LastBarTimeAndSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if ts, err := s.LastBarTime(ctx, "X", 60); err != nil || ts != 0 {
		t.Fatalf("empty LastBarTime = %d, %v", ts, err)
	}
	s.WriteBars(ctx, "X", 60, testBars(5, 1000))
	s.WriteBars(ctx, "Y", 300, testBars(2, 0))

	if ts, _ := s.LastBarTime(ctx, "X", 60); ts != 1240 {
		t.Fatalf("LastBarTime = %d, want 1240", ts)
	}
	syms, err := s.Symbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 || syms["X"][0] != 60 || syms["Y"][0] != 300 {
		t.Fatalf("Symbols = %v", syms)
	}
}

func TestBarStore_WriteEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	called := false
	s.OnCommit = func(int, time.Duration) { called = true }
	if err := s.WriteBars(context.Background(), "X", 60, nil); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("empty write committed")
	}
}
