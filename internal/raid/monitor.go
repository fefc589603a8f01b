package raid

import (
	"context"
	"time"

	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// startMonitor launches the per-raid monitoring loop: on each tick it
// re-schedules verification for any
// unverified action older than VerifyLatencyMin (covering actions whose
// first scheduled attempt returned NotYet or was lost to a process
// restart) and checks the deadline. Exactly one loop runs per raid,
// enforced by only ever being called from Start while
// holding e.mu, and by Complete/completeLocked calling e.stopLoop.
func (c *Coordinator) startMonitor(e *entry) {
	ctx, cancel := context.WithCancel(context.Background())
	e.stopLoop = cancel

	go func() {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.tick(ctx, e) {
					return
				}
			}
		}
	}()
}

// tick returns false once the raid has left active status, so the
// caller's loop can exit.
func (c *Coordinator) tick(ctx context.Context, e *entry) bool {
	e.mu.Lock()
	if e.state.Status != StatusActive {
		e.mu.Unlock()
		return false
	}

	if e.state.EndsAt != nil && !time.Now().UTC().Before(*e.state.EndsAt) {
		now := time.Now().UTC()
		e.state.Status = StatusTimedOut
		e.state.CompletedAt = &now
		e.state.CompletedReason = "deadline_reached"
		id := e.id
		st := e.state
		e.mu.Unlock()

		if _, err := storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
			return struct{}{}, c.backend.updateRaidStatus(ctx, q, id, st)
		}); err != nil {
			c.logger.Error("raid.monitor: persist timeout failed", "raid_id", id, "error", err)
		}
		c.bus.Publish(bus.RaidTopic(id.String()), bus.Event{Name: "raid.ended", Payload: snapshot(st)})
		return false
	}

	cutoff := time.Now().UTC().Add(-c.cfg.VerifyLatencyMin)
	var pending []string
	for _, a := range e.state.ActionLog {
		if !a.Verified && a.SubmittedAt.Before(cutoff) {
			pending = append(pending, a.ActionID)
		}
	}
	id := e.id
	e.mu.Unlock()

	for _, actionID := range pending {
		go c.verifyAction(ctx, id, actionID)
	}
	return true
}
