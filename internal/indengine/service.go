package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quantlab/internal/cache"
	"quantlab/internal/compute"
	"quantlab/internal/logger"
	"quantlab/internal/manifest"
	"quantlab/internal/metrics"
	"quantlab/internal/model"
	"quantlab/internal/resample"
	redisstore "quantlab/internal/store/redis"
	sqlitestore "quantlab/internal/store/sqlite"
)

var (
	// ErrNoBars is returned when a request names a symbol but no bar
	// store is configured to load it from.
	ErrNoBars = errors.New("no bar source for request")

	// ErrUnauthorized is returned for admin calls without a valid code.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSubscriptions is returned when the publisher cannot stream
	// results back.
	ErrNoSubscriptions = errors.New("result subscriptions unavailable")
)

// BarStore is the persistence the service reads and writes bars through.
type BarStore interface {
	model.BarReader
	model.BarWriter
	Symbols(ctx context.Context) (map[string][]int, error)
	LastBarTime(ctx context.Context, symbol string, tf int) (int64, error)
}

// resultSubscriber is implemented by publishers that can stream published
// results back by channel pattern.
type resultSubscriber interface {
	Subscribe(ctx context.Context, pattern string) <-chan *model.Result
}

// Deps are the optional collaborators of a Service. Nil members disable the
// features that need them.
type Deps struct {
	Bars      BarStore
	Publisher model.ResultPublisher
}

// Service computes indicator results on request. It wires the dispatch
// engine, the result cache, bar storage and result fan-out, and serves
// them over HTTP and websocket.
type Service struct {
	cfg Config

	engine *compute.Engine
	cache  *cache.Cache
	bars   BarStore
	pub    model.ResultPublisher
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	// for liveness probes
	sqlDB *sql.DB
	rdb   *goredis.Client
}

// New creates a Service from cfg, opening SQLite and connecting to Redis
// when they are configured. A Redis that cannot be reached is logged and
// skipped; compute does not depend on it.
func New(cfg Config) (*Service, error) {
	var deps Deps

	var store *sqlitestore.BarStore
	if cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		var err error
		store, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, err
		}
		deps.Bars = store
	}

	var pub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		var err error
		pub, err = redisstore.New(redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			ResultTTL: cfg.RedisResultTTL,
		})
		if err != nil {
			log.Printf("[indsvc] WARNING: redis unavailable: %v (continuing without result publishing)", err)
		} else {
			deps.Publisher = pub
		}
	}

	svc, err := NewWithDeps(cfg, deps)
	if err != nil {
		if store != nil {
			store.Close()
		}
		if pub != nil {
			pub.Close()
		}
		return nil, err
	}

	if store != nil {
		svc.sqlDB = store.DB()
		store.OnCommit = func(n int, elapsed time.Duration) {
			svc.prom.SQLiteCommitDur.Observe(elapsed.Seconds())
			svc.prom.BarsWritten.Add(float64(n))
		}
	}
	if pub != nil {
		svc.rdb = pub.Client()
		svc.wirePublisherMetrics(pub)
	}
	return svc, nil
}

// NewWithDeps creates a Service over explicit collaborators.
func NewWithDeps(cfg Config, deps Deps) (*Service, error) {
	m, err := manifest.Load()
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	svc := &Service{
		cfg:    cfg,
		engine: compute.NewEngine(m),
		cache:  cache.New(cfg.CacheTTL, cfg.CacheCapacity),
		bars:   deps.Bars,
		pub:    deps.Publisher,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
	}

	svc.engine.OnCompute = svc.prom.ObserveCompute
	svc.cache.OnHit = func(cache.Key) { svc.prom.CacheHits.Inc() }
	svc.cache.OnMiss = func(cache.Key) { svc.prom.CacheMisses.Inc() }
	svc.cache.OnEvict = func(_ cache.Key, r cache.EvictReason) {
		svc.prom.CacheEvictions.WithLabelValues(r.String()).Inc()
	}
	return svc, nil
}

func (svc *Service) wirePublisherMetrics(pub *redisstore.Publisher) {
	pub.OnPublish = svc.prom.RedisPublished.Inc
	pub.OnError = func(error) { svc.prom.RedisPublishErrors.Inc() }

	cb := pub.Breaker()
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to redisstore.State) {
		if prev != nil {
			prev(from, to)
		}
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
	}
}

// Engine returns the dispatch engine.
func (svc *Service) Engine() *compute.Engine { return svc.engine }

// Cache returns the result cache.
func (svc *Service) Cache() *cache.Cache { return svc.cache }

// Metrics returns the service metrics.
func (svc *Service) Metrics() *metrics.Metrics { return svc.prom }

// Compute resolves the request's bars, serves the result from the cache or
// computes it, and publishes fresh successful results. The boolean reports
// a cache hit. An error is returned only when bars cannot be obtained;
// indicator failures are reported in Result.Error.
func (svc *Service) Compute(ctx context.Context, req ComputeRequest) (*model.Result, bool, error) {
	bars, err := svc.resolveBars(ctx, req)
	if err != nil {
		return nil, false, err
	}

	inst := req.Instance
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}

	params, err := svc.engine.Normalize(inst)
	if err != nil {
		// Unknown kind; the engine reports it and the result is not cached.
		params = inst.Params
	}
	key := cache.NewKey(inst.ID, inst.Kind, params, bars, req.Aux)

	raw, hit, err := svc.cache.Do(key, func() (*model.Result, error) {
		return svc.engine.ComputeUnstyled(inst, bars, req.Aux), nil
	})
	if err != nil {
		return nil, false, err
	}
	// The key ignores presentation, so styling is applied per call.
	res := compute.Style(inst, raw)
	svc.prom.CacheEntries.Set(float64(svc.cache.Len()))

	if res.Failed() {
		slog.Warn("indicator compute failed",
			append(logger.Attrs(ctx), "id", inst.ID, "kind", inst.Kind, "error", res.Error)...)
	}
	if !hit && !res.Failed() && svc.pub != nil {
		if err := svc.pub.Publish(ctx, res); err != nil {
			slog.Debug("result publish skipped",
				append(logger.Attrs(ctx), "id", inst.ID, "error", err)...)
		}
	}
	return res, hit, nil
}

func (svc *Service) resolveBars(ctx context.Context, req ComputeRequest) ([]model.Bar, error) {
	bars := req.Bars
	if len(bars) == 0 && req.Symbol != "" {
		if svc.bars == nil {
			return nil, fmt.Errorf("%w: symbol %s", ErrNoBars, req.Symbol)
		}
		var err error
		bars, err = svc.bars.ReadBars(ctx, req.Symbol, req.TF, req.From, req.To)
		if err != nil {
			return nil, fmt.Errorf("load bars %s/%d: %w", req.Symbol, req.TF, err)
		}
	}
	if req.Resample > 0 && len(bars) > 0 {
		out, err := resample.Bars(bars, req.Resample)
		if err != nil {
			return nil, err
		}
		bars = out
	}
	return bars, nil
}

// Subscribe streams published results for kind and instance id until ctx
// is done. An empty kind or id matches any.
func (svc *Service) Subscribe(ctx context.Context, kind, id string) (<-chan *model.Result, error) {
	sub, ok := svc.pub.(resultSubscriber)
	if !ok {
		return nil, ErrNoSubscriptions
	}
	if kind == "" {
		kind = "*"
	}
	if id == "" {
		id = "*"
	}
	return sub.Subscribe(ctx, redisstore.ResultChannel(kind, id)), nil
}

// SeriesInfo describes one stored bar series.
type SeriesInfo struct {
	Symbol   string `json:"symbol"`
	TF       int    `json:"tf"`
	LastTime int64  `json:"last_time"`
}

// Series lists the stored bar series with their last bar time.
func (svc *Service) Series(ctx context.Context) ([]SeriesInfo, error) {
	if svc.bars == nil {
		return nil, ErrNoBars
	}
	symbols, err := svc.bars.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(symbols))
	for sym := range symbols {
		names = append(names, sym)
	}
	sort.Strings(names)

	out := make([]SeriesInfo, 0, len(names))
	for _, sym := range names {
		for _, tf := range symbols[sym] {
			last, err := svc.bars.LastBarTime(ctx, sym, tf)
			if err != nil {
				return nil, fmt.Errorf("last bar %s/%d: %w", sym, tf, err)
			}
			out = append(out, SeriesInfo{Symbol: sym, TF: tf, LastTime: last})
		}
	}
	return out, nil
}

// ComputeBatch runs every request with bounded concurrency. Each request
// succeeds or fails on its own; failures become error results.
func (svc *Service) ComputeBatch(ctx context.Context, reqs []ComputeRequest) []ComputeResponse {
	svc.prom.BatchSize.Observe(float64(len(reqs)))
	out := make([]ComputeResponse, len(reqs))

	var g errgroup.Group
	g.SetLimit(svc.cfg.workers())
	for i := range reqs {
		g.Go(func() error {
			res, hit, err := svc.Compute(ctx, reqs[i])
			if err != nil {
				res = model.ErrorResult(reqs[i].Instance.ID, reqs[i].Instance.Kind, err.Error())
			}
			out[i] = ComputeResponse{Result: res, Cached: hit}
			return nil
		})
	}
	g.Wait()
	return out
}

// WriteBars persists bars to the bar store.
func (svc *Service) WriteBars(ctx context.Context, symbol string, tf int, bars []model.Bar) error {
	if svc.bars == nil {
		return ErrNoBars
	}
	return svc.bars.WriteBars(ctx, symbol, tf, bars)
}

// Run serves HTTP until ctx is cancelled, then shuts down and closes the
// stores.
func (svc *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    svc.cfg.HTTPAddr,
		Handler: svc.Handler(),
	}

	interval := svc.cfg.HealthInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	svc.health.StartLivenessChecker(ctx, svc.rdb, svc.sqlDB, interval)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[indsvc] HTTP server on %s", svc.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Printf("[indsvc] serving %d indicator kinds (cache ttl=%v capacity=%d, workers=%d)",
		len(svc.engine.Manifest().Kinds()), svc.cache.TTL(), svc.cache.Capacity(), svc.cfg.workers())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
	svc.Close()
	log.Println("[indsvc] shutdown complete.")
	return runErr
}

// Close releases the stores.
func (svc *Service) Close() {
	if svc.bars != nil {
		if err := svc.bars.Close(); err != nil {
			log.Printf("[indsvc] bar store close: %v", err)
		}
	}
	if svc.pub != nil {
		if err := svc.pub.Close(); err != nil {
			log.Printf("[indsvc] publisher close: %v", err)
		}
	}
}
