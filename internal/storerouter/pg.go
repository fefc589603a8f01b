package storerouter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgres builds a Router backed by two independently-sized pgxpool
// pools against the same database: dsn's MaxConns is overridden per pool
// so the transaction pool and session pool are bounded separately.
// pgxpool.Pool.Config().MaxConns is the concrete knob;
// the bounded wait queue and checkout timeout layered on top in router.go
// are raidcore's own addition, since pgxpool itself queues unbounded.
func NewPostgres(ctx context.Context, dsn string, cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()

	txPool, err := newPgxPool(ctx, dsn, int32(cfg.TxPoolSize))
	if err != nil {
		return nil, fmt.Errorf("storerouter: tx pool: %w", err)
	}

	sessPool, err := newPgxPool(ctx, dsn, int32(cfg.SessPoolSize))
	if err != nil {
		txPool.Close()
		return nil, fmt.Errorf("storerouter: session pool: %w", err)
	}

	r := &Router{cfg: cfg}
	r.tx = newPool("tx", pgxQueryer{txPool}, cfg.WaitQueueDepth, cfg.TxPoolSize, cfg.SimpleCheckoutTimeout, func(ctx context.Context) error {
		return txPool.Ping(ctx)
	})
	r.sess = newPool("sess", pgxQueryer{sessPool}, cfg.WaitQueueDepth, cfg.SessPoolSize, cfg.ComplexCheckoutTimeout, func(ctx context.Context) error {
		return sessPool.Ping(ctx)
	})
	r.closeAll = []func(){txPool.Close, sessPool.Close}
	r.stopHealth = r.startHealthLoop(ctx, cfg.HealthInterval)
	return r, nil
}

func newPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
