package storerouter

import (
	"context"
	"time"
)

// startHealthLoop runs a ticker that pings both pools and feeds the
// result into pool.recordHealth, so a pool that fails three consecutive
// probes gets marked degraded even while otherwise idle. Grounded on
// wisbric-nightowl/pkg/escalation/engine.go's ticker+ctx.Done() loop
// shape.
func (r *Router) startHealthLoop(ctx context.Context, interval time.Duration) func() {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.probeOnce(loopCtx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (r *Router) probeOnce(ctx context.Context) {
	for _, p := range []*pool{r.tx, r.sess} {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := p.ping(pctx)
		cancel()
		p.recordHealth(err)
	}
}
