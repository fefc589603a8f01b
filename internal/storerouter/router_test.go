package storerouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
)

type stubQueryer struct{}

func (stubQueryer) Exec(ctx context.Context, sql string, args ...any) error        { return nil }
func (stubQueryer) Query(ctx context.Context, sql string, args ...any) (Rows, error) { return nil, nil }
func (stubQueryer) QueryRow(ctx context.Context, sql string, args ...any) Row       { return nil }

func newTestRouter() *Router {
	cfg := Config{
		WaitQueueDepth:         2,
		SimpleCheckoutTimeout:  200 * time.Millisecond,
		ComplexCheckoutTimeout: 200 * time.Millisecond,
		RetryMax:               2,
		RetryBackoffBase:       time.Millisecond,
		RetryBackoffStep:       time.Millisecond,
	}.withDefaults()
	r := &Router{cfg: cfg}
	r.tx = newPool("tx", stubQueryer{}, cfg.WaitQueueDepth, cfg.TxPoolSize, cfg.SimpleCheckoutTimeout, func(context.Context) error { return nil })
	r.sess = newPool("sess", stubQueryer{}, cfg.WaitQueueDepth, cfg.SessPoolSize, cfg.ComplexCheckoutTimeout, func(context.Context) error { return nil })
	return r
}

func TestRunSimple_Success(t *testing.T) {
	r := newTestRouter()
	got, err := RunSimple(context.Background(), r, false, func(ctx context.Context, q Queryer) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunSimple_RetriesIdempotentReadOnConnectionError(t *testing.T) {
	r := newTestRouter()
	attempts := 0
	got, err := RunSimple(context.Background(), r, true, func(ctx context.Context, q Queryer) (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("connection reset")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 2, attempts)
}

func TestRunSimple_NoRetryOnNonIdempotentWrite(t *testing.T) {
	r := newTestRouter()
	attempts := 0
	_, err := RunSimple(context.Background(), r, false, func(ctx context.Context, q Queryer) (int, error) {
		attempts++
		return 0, errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, apierr.Is(err, apierr.ErrUpstreamUnavailable))
}

func TestRunSimple_DoesNotRetryApplicationError(t *testing.T) {
	r := newTestRouter()
	attempts := 0
	_, err := RunSimple(context.Background(), r, true, func(ctx context.Context, q Queryer) (int, error) {
		attempts++
		return 0, apierr.ErrSessionNotFound
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, apierr.Is(err, apierr.ErrSessionNotFound))
}

func TestPool_DegradesAfterThreeFailures(t *testing.T) {
	r := newTestRouter()
	for i := 0; i < 3; i++ {
		r.tx.recordHealth(errors.New("boom"))
	}
	assert.True(t, r.Stats().TxDegraded)

	r.tx.recordHealth(nil)
	assert.False(t, r.Stats().TxDegraded)
}

func TestPool_AcquireFailsFastWhenDegraded(t *testing.T) {
	r := newTestRouter()
	r.tx.degraded.Store(true)

	_, err := RunSimple(context.Background(), r, false, func(ctx context.Context, q Queryer) (int, error) {
		t.Fatal("operation should not run against a degraded pool")
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrUpstreamUnavailable))
}

func TestPool_BackpressureExceededWhenWaitQueueFull(t *testing.T) {
	r := newTestRouter()
	// Fill the wait queue directly (depth 2).
	r.tx.waitSem <- struct{}{}
	r.tx.waitSem <- struct{}{}

	_, err := RunSimple(context.Background(), r, false, func(ctx context.Context, q Queryer) (int, error) {
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrBackpressureExceeded))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OpSimple, Classify("session.get"))
	assert.Equal(t, OpComplex, Classify("memory.search"))
	assert.Equal(t, OpComplex, Classify("something.unknown"))
}
