package storerouter

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewStandalone builds a Router against a single SQLite file under dir,
// for the no-Postgres-required onboarding mode (raidcore doctor/init).
// Both "pools" are *sql.DB handles over the same file with independent
// SetMaxOpenConns, mirroring the Postgres dual-pool split at a much
// smaller scale; SQLite's single-writer model makes the transaction pool
// mostly advisory here, but keeping the same Router API means every store
// package is written once against Queryer regardless of backend.
func NewStandalone(ctx context.Context, dir string, cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()
	path := filepath.Join(dir, "raidcore.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	txDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storerouter: tx db: %w", err)
	}
	txDB.SetMaxOpenConns(cfg.TxPoolSize)

	sessDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		txDB.Close()
		return nil, fmt.Errorf("storerouter: session db: %w", err)
	}
	sessDB.SetMaxOpenConns(cfg.SessPoolSize)

	if err := txDB.PingContext(ctx); err != nil {
		txDB.Close()
		sessDB.Close()
		return nil, err
	}

	r := &Router{cfg: cfg}
	r.tx = newPool("tx", sqlQueryer{txDB}, cfg.WaitQueueDepth, cfg.TxPoolSize, cfg.SimpleCheckoutTimeout, txDB.PingContext)
	r.sess = newPool("sess", sqlQueryer{sessDB}, cfg.WaitQueueDepth, cfg.SessPoolSize, cfg.ComplexCheckoutTimeout, sessDB.PingContext)
	r.closeAll = []func(){func() { txDB.Close() }, func() { sessDB.Close() }}
	r.stopHealth = r.startHealthLoop(ctx, cfg.HealthInterval)
	return r, nil
}
