// Package storerouter implements the Datastore Router: two independently
// bounded pools (a transaction pool for short-lived simple queries, a
// session pool for long-running/joining/vector queries), a bounded FIFO
// wait queue per pool, checkout timeouts, retry-with-backoff for
// idempotent reads, and a health prober that fails a pool fast after three
// consecutive probe failures.
//
// Grounded on wisbric-nightowl/pkg/escalation/engine.go's pgxpool.Pool
// usage for the pooling primitive, and on the teacher's own retry/backoff
// conventions elsewhere in internal/providers.
package storerouter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/telemetry"
)

// Config tunes the router's pool sizes, queue depths, and timeouts. Zero
// values are replaced with the spec's documented defaults.
type Config struct {
	TxPoolSize           int
	SessPoolSize         int
	WaitQueueDepth       int
	SimpleCheckoutTimeout  time.Duration
	ComplexCheckoutTimeout time.Duration
	HealthInterval       time.Duration
	RetryMax             int
	RetryBackoffBase     time.Duration
	RetryBackoffStep     time.Duration
}

func (c Config) withDefaults() Config {
	if c.TxPoolSize <= 0 {
		c.TxPoolSize = 20
	}
	if c.SessPoolSize <= 0 {
		c.SessPoolSize = 5
	}
	if c.WaitQueueDepth <= 0 {
		c.WaitQueueDepth = 100
	}
	if c.SimpleCheckoutTimeout <= 0 {
		c.SimpleCheckoutTimeout = 5 * time.Second
	}
	if c.ComplexCheckoutTimeout <= 0 {
		c.ComplexCheckoutTimeout = 30 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 50 * time.Millisecond
	}
	if c.RetryBackoffStep <= 0 {
		c.RetryBackoffStep = 150 * time.Millisecond
	}
	return c
}

// pool wraps a Queryer with the bounded wait queue and degraded-tracking
// the spec requires.
type pool struct {
	name            string
	q               Queryer
	waitSem         chan struct{}
	poolSem         chan struct{}
	checkoutTimeout time.Duration
	consecutiveFail atomic.Int32
	degraded        atomic.Bool
	ping            func(ctx context.Context) error
}

func newPool(name string, q Queryer, queueDepth, poolSize int, timeout time.Duration, ping func(context.Context) error) *pool {
	return &pool{
		name:            name,
		q:               q,
		waitSem:         make(chan struct{}, queueDepth),
		poolSem:         make(chan struct{}, poolSize),
		checkoutTimeout: timeout,
		ping:            ping,
	}
}

// acquire enters the bounded wait queue — if the queue itself is already
// saturated, it fails fast with BackpressureExceeded rather than piling up
// a waiter behind it — then blocks for an actual pool slot up to
// checkoutTimeout. The two bounds are distinct: WaitQueueDepth (default
// 100) caps how many callers may be queued at once, poolSize
// (TxPoolSize/SessPoolSize) caps how many can actually be running, so a
// caller can be admitted to the queue well before a slot frees up and
// time out waiting for one.
func (p *pool) acquire(ctx context.Context) (release func(), err error) {
	if p.degraded.Load() {
		return nil, apierr.ErrUpstreamUnavailable.Wrap(errors.New(p.name + " pool is degraded"))
	}

	select {
	case p.waitSem <- struct{}{}:
	default:
		return nil, apierr.ErrBackpressureExceeded
	}

	cctx, cancel := context.WithTimeout(ctx, p.checkoutTimeout)
	defer cancel()
	select {
	case p.poolSem <- struct{}{}:
		return func() {
			<-p.poolSem
			<-p.waitSem
		}, nil
	case <-cctx.Done():
		<-p.waitSem
		return nil, apierr.ErrPoolTimeout
	}
}

func (p *pool) recordHealth(err error) {
	if err == nil {
		p.consecutiveFail.Store(0)
		if p.degraded.CompareAndSwap(true, false) {
			slog.Info("storerouter.pool_recovered", "pool", p.name)
		}
		telemetry.PoolDegraded.WithLabelValues(p.name).Set(0)
		return
	}
	n := p.consecutiveFail.Add(1)
	if n >= 3 {
		if p.degraded.CompareAndSwap(false, true) {
			slog.Error("storerouter.pool_degraded", "pool", p.name, "consecutive_failures", n)
		}
		telemetry.PoolDegraded.WithLabelValues(p.name).Set(1)
	}
}

// Router routes simple CRUD to the transaction pool and analytical/
// semantic queries to the session pool.
type Router struct {
	cfg      Config
	tx       *pool
	sess     *pool
	closeAll []func()
	mu       sync.Mutex
	stopHealth func()
}

// Stats reports whether each pool is marked degraded. GET /health does not
// read it; that handler reports pools as "ok" unconditionally.
type Stats struct {
	TxDegraded   bool
	SessDegraded bool
}

func (r *Router) Stats() Stats {
	return Stats{TxDegraded: r.tx.degraded.Load(), SessDegraded: r.sess.degraded.Load()}
}

// Close releases both pools and stops the health prober.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopHealth != nil {
		r.stopHealth()
	}
	for _, c := range r.closeAll {
		c()
	}
}

// Operation is a unit of work handed to RunSimple/RunComplex.
type Operation[T any] func(ctx context.Context, q Queryer) (T, error)

// RunSimple executes op against the transaction pool. idempotentRead
// enables retry-with-backoff on connection error, per spec: writes are
// never auto-retried.
func RunSimple[T any](ctx context.Context, r *Router, idempotentRead bool, op Operation[T]) (T, error) {
	return run(ctx, r.tx, r.cfg, idempotentRead, op)
}

// RunComplex executes op against the session pool.
func RunComplex[T any](ctx context.Context, r *Router, idempotentRead bool, op Operation[T]) (T, error) {
	return run(ctx, r.sess, r.cfg, idempotentRead, op)
}

func run[T any](ctx context.Context, p *pool, cfg Config, idempotentRead bool, op Operation[T]) (T, error) {
	var zero T

	start := time.Now()
	release, err := p.acquire(ctx)
	telemetry.PoolCheckoutDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return zero, err
	}
	defer release()

	attempts := 1
	if idempotentRead {
		attempts = cfg.RetryMax + 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := cfg.RetryBackoffBase + time.Duration(i-1)*cfg.RetryBackoffStep
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		result, opErr := op(ctx, p.q)
		if opErr == nil {
			p.recordHealth(nil)
			return result, nil
		}
		lastErr = opErr
		if !isConnectionError(opErr) {
			// Not a connectivity problem — no point retrying.
			return zero, opErr
		}
	}
	p.recordHealth(lastErr)
	return zero, apierr.ErrUpstreamUnavailable.Wrap(lastErr)
}

func isConnectionError(err error) bool {
	// A conservative classifier: anything that isn't a recognized
	// apierr.Error (i.e. a driver/network error, not a validation error
	// surfaced by the operation itself) is treated as connectivity-related
	// and thus retriable for idempotent reads.
	var apiErr *apierr.Error
	return !errors.As(err, &apiErr)
}
