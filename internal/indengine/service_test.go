package indengine

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"quantlab/internal/model"
	"quantlab/internal/parity"
	redisstore "quantlab/internal/store/redis"
	sqlitestore "quantlab/internal/store/sqlite"
)

// fakePublisher records published results, serves them back and fans them
// out to pattern subscribers the way Redis PSUBSCRIBE does.
type fakePublisher struct {
	mu     sync.Mutex
	latest map[string]*model.Result
	count  int
	subs   []fakeSub
}

type fakeSub struct {
	ctx     context.Context
	pattern string
	ch      chan *model.Result
}

func (f *fakePublisher) Publish(_ context.Context, res *model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		f.latest = make(map[string]*model.Result)
	}
	f.latest[res.ID] = res
	f.count++

	channel := redisstore.ResultChannel(res.Kind, res.ID)
	for _, sub := range f.subs {
		if sub.ctx.Err() != nil {
			continue
		}
		if ok, _ := path.Match(sub.pattern, channel); ok {
			select {
			case sub.ch <- res:
			default:
			}
		}
	}
	return nil
}

func (f *fakePublisher) Subscribe(ctx context.Context, pattern string) <-chan *model.Result {
	ch := make(chan *model.Result, 16)
	f.mu.Lock()
	f.subs = append(f.subs, fakeSub{ctx: ctx, pattern: pattern, ch: ch})
	f.mu.Unlock()
	return ch
}

func (f *fakePublisher) Latest(_ context.Context, id string) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[id], nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func testConfig() Config {
	return Config{CacheTTL: time.Minute, CacheCapacity: 50, ComputeWorkers: 3}
}

func newTestService(t *testing.T, withStore bool) (*Service, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	deps := Deps{Publisher: pub}
	if withStore {
		store, err := sqlitestore.New(sqlitestore.Config{DBPath: filepath.Join(t.TempDir(), "bars.db")})
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		deps.Bars = store
	}
	svc, err := NewWithDeps(testConfig(), deps)
	if err != nil {
		t.Fatalf("NewWithDeps: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, pub
}

func smaRequest(id string, bars []model.Bar) ComputeRequest {
	return ComputeRequest{
		Instance: model.Instance{ID: id, Kind: "sma", Params: model.Params{"length": model.Num(9)}},
		Bars:     bars,
	}
}

// ────────────────────────────────────────────────────────────
// Compute
// ────────────────────────────────────────────────────────────

func TestService_ComputeCachesAndPublishes(t *testing.T) {
	svc, pub := newTestService(t, false)
	ctx := context.Background()
	bars := parity.Linear(30, 0, parity.DaySeconds, 100, 1)

	first, hit, err := svc.Compute(ctx, smaRequest("sma9", bars))
	if err != nil || hit {
		t.Fatalf("first: hit=%v err=%v", hit, err)
	}
	second, hit, err := svc.Compute(ctx, smaRequest("sma9", bars))
	if err != nil || !hit {
		t.Fatalf("second: hit=%v err=%v", hit, err)
	}
	if ms := parity.Compare(parity.Series(second, "main"), parity.Series(first, "main"), 0); len(ms) > 0 {
		t.Fatalf("cached values differ:\n%s", parity.Summary(ms, 5))
	}
	if pub.published() != 1 {
		t.Fatalf("published %d times, want 1", pub.published())
	}
	if got := parity.Series(first, "main"); got[29] != bars[29].Close-4 {
		t.Fatalf("sma[29] = %v, want %v", got[29], bars[29].Close-4)
	}
}

func TestService_ComputeAssignsMissingID(t *testing.T) {
	svc, _ := newTestService(t, false)
	res, _, err := svc.Compute(context.Background(), smaRequest("", parity.Fixture(20, 1, 0, 60)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ID) != 36 || strings.Count(res.ID, "-") != 4 {
		t.Fatalf("generated id = %q, want a UUID", res.ID)
	}
}

func TestService_ComputeLoadsBarsFromStore(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()
	bars := parity.Fixture(50, 3, 1_700_000_000, 300)
	if err := svc.WriteBars(ctx, "NIFTY", 300, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	req := ComputeRequest{
		Instance: model.Instance{ID: "r", Kind: "rsi"},
		Symbol:   "NIFTY",
		TF:       300,
		From:     bars[10].Time,
		To:       bars[39].Time,
	}
	res, _, err := svc.Compute(ctx, req)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Failed() {
		t.Fatalf("result error: %s", res.Error)
	}
	times := parity.Times(res, res.Lines[0].ID)
	if len(times) != 30 || times[0] != bars[10].Time || times[29] != bars[39].Time {
		t.Fatalf("loaded %d bars (%v..%v)", len(times), times[0], times[len(times)-1])
	}
}

func TestService_SymbolWithoutStore(t *testing.T) {
	svc, _ := newTestService(t, false)
	_, _, err := svc.Compute(context.Background(), ComputeRequest{
		Instance: model.Instance{ID: "x", Kind: "sma"}, Symbol: "NIFTY", TF: 60,
	})
	if !errors.Is(err, ErrNoBars) {
		t.Fatalf("err = %v, want ErrNoBars", err)
	}
	if err := svc.WriteBars(context.Background(), "NIFTY", 60, nil); !errors.Is(err, ErrNoBars) {
		t.Fatalf("WriteBars err = %v, want ErrNoBars", err)
	}
}

func TestService_FailedResultsNotCachedOrPublished(t *testing.T) {
	svc, pub := newTestService(t, false)
	ctx := context.Background()
	req := ComputeRequest{Instance: model.Instance{ID: "u", Kind: "nonexistent"}, Bars: parity.Fixture(10, 1, 0, 60)}

	for i := 0; i < 2; i++ {
		res, hit, err := svc.Compute(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if hit || res.Error != "Unknown indicator kind: nonexistent" {
			t.Fatalf("call %d: hit=%v error=%q", i, hit, res.Error)
		}
	}
	if svc.Cache().Len() != 0 || pub.published() != 0 {
		t.Fatalf("cache=%d published=%d", svc.Cache().Len(), pub.published())
	}
}

func TestService_ComputeBatchIsolatesFailures(t *testing.T) {
	svc, _ := newTestService(t, false)
	bars := parity.Fixture(60, 9, 0, 60)
	reqs := []ComputeRequest{
		smaRequest("a", bars),
		{Instance: model.Instance{ID: "b", Kind: "bogus"}, Bars: bars},
		{Instance: model.Instance{ID: "c", Kind: "ema"}, Symbol: "NIFTY", TF: 60},
		{Instance: model.Instance{ID: "d", Kind: "macd"}, Bars: bars},
	}

	out := svc.ComputeBatch(context.Background(), reqs)
	if len(out) != len(reqs) {
		t.Fatalf("got %d responses", len(out))
	}
	for i, want := range []bool{false, true, true, false} {
		if out[i].Result == nil {
			t.Fatalf("response %d has no result", i)
		}
		if out[i].Result.Failed() != want {
			t.Errorf("response %d failed=%v (%q), want %v", i, out[i].Result.Failed(), out[i].Result.Error, want)
		}
		if out[i].Result.ID != reqs[i].Instance.ID {
			t.Errorf("response %d id = %q, out of order", i, out[i].Result.ID)
		}
	}
}

func TestService_ComputeResamplesBars(t *testing.T) {
	svc, _ := newTestService(t, false)
	req := smaRequest("sma-5m", parity.Linear(60, 0, 60, 100, 1))
	req.Resample = 300

	res, _, err := svc.Compute(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	vals := parity.Series(res, "main")
	if len(vals) != 12 {
		t.Fatalf("got %d points, want 12 five-minute bars", len(vals))
	}
	// five-minute closes are 104, 109, ... 159; the last nine average to 139
	if vals[11] != 139 {
		t.Fatalf("sma[11] = %v, want 139", vals[11])
	}
	if times := parity.Times(res, "main"); times[11] != 3300 {
		t.Fatalf("last time = %d, want 3300", times[11])
	}
}

func TestService_StylingChangesServedFromCache(t *testing.T) {
	svc, pub := newTestService(t, false)
	ctx := context.Background()
	bars := parity.Fixture(60, 4, 0, 60)
	req := func(color string, styles map[string]model.StyleOverride) ComputeRequest {
		return ComputeRequest{
			Instance: model.Instance{ID: "bb", Kind: "bb", Color: color, Styles: styles},
			Bars:     bars,
		}
	}

	first, _, err := svc.Compute(ctx, req("#111111", nil))
	if err != nil {
		t.Fatal(err)
	}
	if first.Line("basis").Color != "#111111" || len(first.Lines) != 3 || len(first.Fills) != 1 {
		t.Fatalf("first: basis color=%s lines=%d fills=%d", first.Line("basis").Color, len(first.Lines), len(first.Fills))
	}

	recolored, hit, _ := svc.Compute(ctx, req("#FF0000", nil))
	if !hit {
		t.Fatal("recolor should not recompute")
	}
	if got := recolored.Line("basis").Color; got != "#FF0000" {
		t.Fatalf("recolored basis = %s, want #FF0000", got)
	}

	hide := false
	hidden, hit, _ := svc.Compute(ctx, req("", map[string]model.StyleOverride{"upper": {Visible: &hide}}))
	if !hit {
		t.Fatal("hiding a line should not recompute")
	}
	if hidden.Line("upper") != nil || len(hidden.Lines) != 2 || len(hidden.Fills) != 0 {
		t.Fatalf("hidden: lines=%d fills=%d", len(hidden.Lines), len(hidden.Fills))
	}
	if got := hidden.Line("basis").Color; got != "#FF6D00" {
		t.Fatalf("basis color = %s, want manifest default", got)
	}

	// earlier results are not touched by later styling
	if first.Line("basis").Color != "#111111" || len(first.Lines) != 3 {
		t.Fatal("styling mutated a previously returned result")
	}
	if svc.Cache().Len() != 1 || pub.published() != 1 {
		t.Fatalf("cache=%d published=%d", svc.Cache().Len(), pub.published())
	}
}

func TestService_SeriesListsStoredBars(t *testing.T) {
	svc, _ := newTestService(t, true)
	ctx := context.Background()
	bars := parity.Fixture(10, 1, 1_700_000_000, 60)
	if err := svc.WriteBars(ctx, "NIFTY", 60, bars); err != nil {
		t.Fatal(err)
	}
	if err := svc.WriteBars(ctx, "BANKNIFTY", 300, bars[:3]); err != nil {
		t.Fatal(err)
	}

	series, err := svc.Series(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []SeriesInfo{
		{Symbol: "BANKNIFTY", TF: 300, LastTime: bars[2].Time},
		{Symbol: "NIFTY", TF: 60, LastTime: bars[9].Time},
	}
	if len(series) != len(want) {
		t.Fatalf("series = %+v", series)
	}
	for i := range want {
		if series[i] != want[i] {
			t.Errorf("series[%d] = %+v, want %+v", i, series[i], want[i])
		}
	}

	noStore, _ := newTestService(t, false)
	if _, err := noStore.Series(ctx); !errors.Is(err, ErrNoBars) {
		t.Fatalf("err = %v, want ErrNoBars", err)
	}
}

func TestService_SubscribeWithoutPublisher(t *testing.T) {
	svc, err := NewWithDeps(testConfig(), Deps{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(context.Background(), "sma", ""); !errors.Is(err, ErrNoSubscriptions) {
		t.Fatalf("err = %v, want ErrNoSubscriptions", err)
	}
}
