package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quantlab/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultResultTTL    = 30 * time.Minute
	defaultMaxFailures  = 5
	defaultResetTimeout = 10 * time.Second
	defaultBufferSize   = 1000
)

// Config configures the Redis result publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	ResultTTL    time.Duration // lifetime of the latest-result key
	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // open period before a half-open probe
	BufferSize   int           // results held while the breaker is open
}

func (c Config) withDefaults() Config {
	if c.ResultTTL <= 0 {
		c.ResultTTL = defaultResultTTL
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = defaultMaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// ResultKey is the key holding the latest result of an instance.
func ResultKey(id string) string { return "ind:result:" + id }

// ResultChannel is the pub/sub channel a result is announced on.
func ResultChannel(kind, id string) string { return "pub:ind:" + kind + ":" + id }

// Publisher fans successful results out through Redis: the JSON is stored
// under ResultKey with a TTL and published on ResultChannel in one pipeline.
// Writes go through a circuit breaker; while it is open results are kept in
// a bounded buffer and replayed once the circuit closes.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
	send   func(ctx context.Context, res *model.Result, payload string) error

	mu     sync.Mutex
	buffer []*model.Result
	maxBuf int

	// Callbacks (optional, for metrics)
	OnPublish func()          // called after a successful write
	OnError   func(err error) // called when a write fails or is rejected
	OnFlush   func(count int) // called after replaying buffered results
}

var _ model.ResultPublisher = (*Publisher)(nil)

// New connects to Redis, pings the server and returns a publisher.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient builds a publisher around an existing client without
// checking connectivity.
func NewWithClient(client *goredis.Client, cfg Config) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		ttl:    cfg.ResultTTL,
		maxBuf: cfg.BufferSize,
	}
	p.send = p.write
	p.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		if to == StateClosed {
			go p.flush(context.Background())
		}
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the circuit breaker guarding writes. Callers that hook
// OnStateChange must chain the previous callback.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// Publish stores and announces res. Nil and failed results are ignored.
// When the circuit is open the result is buffered and ErrCircuitOpen is
// returned.
func (p *Publisher) Publish(ctx context.Context, res *model.Result) error {
	if res == nil || res.Failed() {
		return nil
	}
	data, err := res.JSON()
	if err != nil {
		err = fmt.Errorf("encode result %s: %w", res.ID, err)
		log.Printf("[redis] %v", err)
		if p.OnError != nil {
			p.OnError(err)
		}
		return err
	}
	payload := string(data)
	err = p.cb.Execute(func() error { return p.send(ctx, res, payload) })
	switch {
	case err == nil:
		if p.OnPublish != nil {
			p.OnPublish()
		}
		return nil
	case errors.Is(err, ErrCircuitOpen):
		p.bufferResult(res)
	}
	if p.OnError != nil {
		p.OnError(err)
	}
	return err
}

// write performs the pipelined SET + PUBLISH for one result.
func (p *Publisher) write(ctx context.Context, res *model.Result, payload string) error {
	pipe := p.client.Pipeline()
	pipe.Set(ctx, ResultKey(res.ID), payload, p.ttl)
	pipe.Publish(ctx, ResultChannel(res.Kind, res.ID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", res.ID, err)
	}
	return nil
}

func (p *Publisher) bufferResult(res *model.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A newer result for the same instance supersedes the buffered one.
	for i, r := range p.buffer {
		if r.ID == res.ID {
			p.buffer = append(p.buffer[:i], p.buffer[i+1:]...)
			break
		}
	}
	if len(p.buffer) >= p.maxBuf {
		// Buffer full: drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, res)
}

// flush replays buffered results. Results rejected again stay buffered.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	flushed := 0
	for _, res := range toFlush {
		data, err := res.JSON()
		if err != nil {
			log.Printf("[redis] dropping buffered %s: %v", res.ID, err)
			continue
		}
		payload := string(data)
		err = p.cb.Execute(func() error { return p.send(ctx, res, payload) })
		if errors.Is(err, ErrCircuitOpen) {
			p.bufferResult(res)
			continue
		}
		if err != nil {
			log.Printf("[redis] replay %s failed: %v", res.ID, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered results", flushed)
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered results waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
