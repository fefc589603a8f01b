package storerouter

import "context"

// NewTestRouter builds a Router over a caller-supplied Queryer for both
// pools, with health probing disabled. Exported so internal/memory,
// internal/identity, and internal/raid's own tests can exercise
// RunSimple/RunComplex without a live database, the same way goclaw's
// store tests substitute an in-memory stub behind its store interfaces.
func NewTestRouter(q Queryer) *Router {
	cfg := Config{}.withDefaults()
	r := &Router{cfg: cfg}
	noop := func(context.Context) error { return nil }
	r.tx = newPool("tx", q, cfg.WaitQueueDepth, cfg.TxPoolSize, cfg.SimpleCheckoutTimeout, noop)
	r.sess = newPool("sess", q, cfg.WaitQueueDepth, cfg.SessPoolSize, cfg.ComplexCheckoutTimeout, noop)
	return r
}
