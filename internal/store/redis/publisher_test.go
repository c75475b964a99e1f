package redis

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"quantlab/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// fakeSink records writes in place of the Redis pipeline.
type fakeSink struct {
	mu   sync.Mutex
	fail bool
	ids  []string
}

func (f *fakeSink) send(_ context.Context, res *model.Result, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection refused")
	}
	f.ids = append(f.ids, res.ID)
	return nil
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSink) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func newTestPublisher(t *testing.T, cfg Config) (*Publisher, *fakeSink, *stepClock) {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	p := NewWithClient(client, cfg)
	sink := &fakeSink{}
	p.send = sink.send
	clk := &stepClock{t: time.Unix(1_700_000_000, 0)}
	p.cb.Now = clk.now
	// Replays are driven explicitly by the tests.
	p.cb.OnStateChange = nil
	return p, sink, clk
}

func result(id string) *model.Result {
	return &model.Result{ID: id, Kind: "sma", Pane: model.PaneOverlay}
}

func TestKeys(t *testing.T) {
	if got := ResultKey("a1"); got != "ind:result:a1" {
		t.Errorf("ResultKey = %q", got)
	}
	if got := ResultChannel("rsi", "a1"); got != "pub:ind:rsi:a1" {
		t.Errorf("ResultChannel = %q", got)
	}
}

func TestPublisher_PublishesSuccessfulResults(t *testing.T) {
	p, sink, _ := newTestPublisher(t, Config{})
	var published int
	p.OnPublish = func() { published++ }

	ctx := context.Background()
	if err := p.Publish(ctx, result("a")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	p.Publish(ctx, nil)
	p.Publish(ctx, model.ErrorResult("b", "sma", "boom"))

	if got := sink.written(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("written = %v, want [a]", got)
	}
	if published != 1 {
		t.Fatalf("OnPublish called %d times", published)
	}
}

func TestPublisher_UnencodableResultIsReported(t *testing.T) {
	p, sink, _ := newTestPublisher(t, Config{})
	var errs int
	p.OnError = func(error) { errs++ }

	res := result("nan")
	res.Markers = []model.Marker{{Time: 1, Position: "above", Price: math.NaN()}}
	if err := p.Publish(context.Background(), res); err == nil {
		t.Fatal("expected encode error")
	}
	if len(sink.written()) != 0 || errs != 1 {
		t.Fatalf("written=%v errs=%d", sink.written(), errs)
	}
	if p.Breaker().Failures() != 0 || p.PendingCount() != 0 {
		t.Fatal("encode failure reached the breaker or buffer")
	}
}

func TestPublisher_BuffersWhileOpenAndReplays(t *testing.T) {
	p, sink, clk := newTestPublisher(t, Config{MaxFailures: 2, ResetTimeout: time.Second})
	ctx := context.Background()
	var errs int
	p.OnError = func(error) { errs++ }

	sink.setFail(true)
	p.Publish(ctx, result("a"))
	p.Publish(ctx, result("b"))
	if p.Breaker().CurrentState() != StateOpen {
		t.Fatalf("breaker = %v, want open", p.Breaker().CurrentState())
	}

	if err := p.Publish(ctx, result("c")); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	p.Publish(ctx, result("c"))
	if p.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 (same id coalesced)", p.PendingCount())
	}
	if errs != 4 {
		t.Fatalf("OnError called %d times, want 4", errs)
	}

	sink.setFail(false)
	clk.advance(2 * time.Second)
	var flushed int
	p.OnFlush = func(n int) { flushed = n }
	p.flush(ctx)

	if got := sink.written(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("replayed = %v, want [c]", got)
	}
	if flushed != 1 || p.PendingCount() != 0 {
		t.Fatalf("flushed=%d pending=%d", flushed, p.PendingCount())
	}
	if p.Breaker().CurrentState() != StateClosed {
		t.Fatalf("breaker = %v, want closed", p.Breaker().CurrentState())
	}
}

func TestPublisher_BufferDropsOldest(t *testing.T) {
	p, sink, _ := newTestPublisher(t, Config{MaxFailures: 1, ResetTimeout: time.Hour, BufferSize: 2})
	ctx := context.Background()

	sink.setFail(true)
	p.Publish(ctx, result("trip"))
	for _, id := range []string{"a", "b", "c"} {
		p.Publish(ctx, result(id))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) != 2 || p.buffer[0].ID != "b" || p.buffer[1].ID != "c" {
		ids := make([]string, len(p.buffer))
		for i, r := range p.buffer {
			ids[i] = r.ID
		}
		t.Fatalf("buffer = %v, want [b c]", ids)
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.ResultTTL != defaultResultTTL || c.MaxFailures != defaultMaxFailures ||
		c.ResetTimeout != defaultResetTimeout || c.BufferSize != defaultBufferSize {
		t.Fatalf("defaults = %+v", c)
	}
}
