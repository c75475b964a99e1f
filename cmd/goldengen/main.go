// cmd/goldengen records golden baselines: it computes the chosen indicator
// kinds with their default parameters over a deterministic fixture (or bars
// stored in SQLite) and writes one JSON file per kind.
//
// Usage:
//
//	go run ./cmd/goldengen --kinds=sma,rsi,macd --bars=400 --seed=20240101 --out=testdata/golden
//	go run ./cmd/goldengen --db=data/bars.db --symbol=NIFTY --tf=300 --kinds=all
//	go run ./cmd/goldengen --db=data/bars.db --symbol=NIFTY --tf=60 --resample=900
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"quantlab/internal/compute"
	"quantlab/internal/manifest"
	"quantlab/internal/model"
	"quantlab/internal/parity"
	"quantlab/internal/resample"
	sqlitestore "quantlab/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	kindsFlag := flag.String("kinds", "all", "Comma-separated indicator kinds, or \"all\"")
	n := flag.Int("bars", 400, "Fixture length")
	seed := flag.Int64("seed", 20240101, "Fixture seed")
	start := flag.Int64("start", 1704067200, "Fixture first bar time (unix seconds)")
	step := flag.Int64("step", parity.DaySeconds, "Fixture bar spacing in seconds")
	dbPath := flag.String("db", "", "Read bars from this SQLite database instead of the fixture")
	symbol := flag.String("symbol", "", "Symbol to read with --db")
	tf := flag.Int("tf", 60, "Timeframe to read with --db")
	resampleTF := flag.Int64("resample", 0, "Aggregate bars to this many seconds before computing (0=off)")
	out := flag.String("out", "testdata/golden", "Output directory")
	flag.Parse()

	m, err := manifest.Load()
	if err != nil {
		log.Fatalf("[goldengen] manifest: %v", err)
	}
	engine := compute.NewEngine(m)

	bars, barsSeed, err := loadBars(*dbPath, *symbol, *tf, *n, *seed, *start, *step)
	if err != nil {
		log.Fatalf("[goldengen] %v", err)
	}
	if *resampleTF > 0 {
		if bars, err = resample.Bars(bars, *resampleTF); err != nil {
			log.Fatalf("[goldengen] %v", err)
		}
	}

	kinds := m.Kinds()
	if *kindsFlag != "all" {
		kinds = strings.Split(*kindsFlag, ",")
	}

	aux := syntheticAux(bars)
	written := 0
	for _, kind := range kinds {
		kind = strings.TrimSpace(kind)
		ind, ok := m.Lookup(kind)
		if !ok {
			log.Printf("[goldengen] skipping unknown kind %q", kind)
			continue
		}
		params := ind.Defaults()
		res := engine.Compute(model.Instance{ID: "golden-" + kind, Kind: kind, Params: params}, bars, aux)
		if res.Failed() {
			log.Printf("[goldengen] %s failed: %s", kind, res.Error)
			continue
		}
		path := filepath.Join(*out, kind+".json")
		if err := parity.SaveGolden(path, parity.GoldenFrom(res, params, barsSeed, len(bars))); err != nil {
			log.Fatalf("[goldengen] %v", err)
		}
		written++
	}
	log.Printf("[goldengen] wrote %d baselines over %d bars to %s", written, len(bars), *out)
}

// loadBars returns stored bars when dbPath is set, else the fixture. The
// returned seed is zero for stored bars.
func loadBars(dbPath, symbol string, tf, n int, seed, start, step int64) ([]model.Bar, int64, error) {
	if dbPath == "" {
		return parity.Fixture(n, seed, start, step), seed, nil
	}
	if symbol == "" {
		return nil, 0, fmt.Errorf("--symbol is required with --db")
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: dbPath})
	if err != nil {
		return nil, 0, err
	}
	defer store.Close()

	bars, err := store.ReadBars(context.Background(), symbol, tf, 0, 0)
	if err != nil {
		return nil, 0, err
	}
	if len(bars) == 0 {
		return nil, 0, fmt.Errorf("no bars for %s/%d in %s", symbol, tf, dbPath)
	}
	return bars, 0, nil
}

// syntheticAux derives deterministic breadth and intrabar data from bars so
// the aux-driven kinds also get baselines.
func syntheticAux(bars []model.Bar) *model.Aux {
	aux := &model.Aux{}
	for i, b := range bars {
		aux.Breadth = append(aux.Breadth, model.BreadthPoint{
			Time:     b.Time,
			Advances: float64(200 + (i*37)%90),
			Declines: float64(180 + (i*53)%110),
		})
		if i == len(bars)-1 {
			continue
		}
		span := bars[i+1].Time - b.Time
		for k := int64(0); k < 4; k++ {
			frac := float64(k+1) / 4
			aux.Intrabar = append(aux.Intrabar, model.Bar{
				Time:   b.Time + k*span/4,
				Open:   b.Open + (b.Close-b.Open)*float64(k)/4,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Open + (b.Close-b.Open)*frac,
				Volume: b.Volume / 4,
			})
		}
	}
	return aux
}
