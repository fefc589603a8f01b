package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// StartSweep launches the cleanup sweep: every second it asks gronx
// whether cfg.SweepCronExpr (default "@every 60s") is due, and if so
// scans for active sessions past expires_at, transitions them to
// expired, and removes terminal sessions older than Retention. The sweep
// is single-flight via sweeping — a second overlapping invocation (the
// previous run still in flight when the next tick is due) is a no-op.
func (m *Manager) StartSweep(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var sweeping atomic.Bool
	gron := gronx.New()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				due, err := gron.IsDue(m.cfg.SweepCronExpr)
				if err != nil {
					m.logger.Error("session.sweep: invalid cron expression", "expr", m.cfg.SweepCronExpr, "error", err)
					continue
				}
				if !due {
					continue
				}
				if !sweeping.CompareAndSwap(false, true) {
					continue
				}
				m.runSweep(ctx)
				sweeping.Store(false)
			}
		}
	}()

	m.stopSweep = cancel
	return cancel
}

func (m *Manager) runSweep(ctx context.Context) {
	now := time.Now().UTC()
	// reaped collects only the ids the sweep itself confirms are
	// terminal/gone this tick — gcLocks must never see a healthy active
	// session's id, or it evicts a lock a concurrent caller may still
	// be relying on. See gcLocks' doc comment.
	reaped := make(map[uuid.UUID]struct{})

	expiring, err := storerouter.RunSimple(ctx, m.router, true, func(ctx context.Context, q storerouter.Queryer) ([]uuid.UUID, error) {
		rows, err := q.Query(ctx, m.backend.findExpiringQuery(), m.backend.timeArg(now))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var ids []uuid.UUID
		for rows.Next() {
			id, err := m.scanSessionID(rows)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
	if err != nil {
		m.logger.Error("session.sweep: scan expiring failed", "error", err)
		return
	}

	for _, id := range expiring {
		lock := m.lockFor(id)
		lock.Lock()
		s, err := m.fetch(ctx, id)
		if err != nil {
			lock.Unlock()
			continue
		}
		if s.State == StateActive && !now.Before(s.ExpiresAt) {
			s.State = StateExpired
			if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
				return struct{}{}, m.backend.updateState(ctx, q, s)
			}); err != nil {
				m.logger.Error("session.sweep: persist expiry failed", "session_id", id, "error", err)
			} else {
				m.bus.Publish(bus.SessionTopic(id.String()), bus.Event{Name: "session.expired", Payload: *s})
				reaped[id] = struct{}{}
			}
		}
		lock.Unlock()
	}

	cutoff := now.Add(-m.cfg.Retention)
	terminal, err := storerouter.RunSimple(ctx, m.router, true, func(ctx context.Context, q storerouter.Queryer) ([]uuid.UUID, error) {
		rows, err := q.Query(ctx, m.backend.findTerminalBeforeQuery(), m.backend.timeArg(cutoff))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var ids []uuid.UUID
		for rows.Next() {
			id, err := m.scanSessionID(rows)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
	if err != nil {
		m.logger.Error("session.sweep: scan terminal failed", "error", err)
	} else {
		// Acquire and release each lock before purging its row: if a
		// caller is mid-transition on one of these ids, this blocks
		// until it finishes (the row it persists will already be
		// terminal by construction), so the delete never races a
		// write and gcLocks never evicts a lock still backing one.
		for _, id := range terminal {
			lock := m.lockFor(id)
			lock.Lock()
			reaped[id] = struct{}{}
			lock.Unlock()
		}
		if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
			return struct{}{}, m.backend.deleteTerminalBefore(ctx, q, cutoff)
		}); err != nil {
			m.logger.Error("session.sweep: retention delete failed", "error", err)
		}
	}

	m.gcLocks(reaped)
}

func (m *Manager) scanSessionID(row storerouter.Row) (uuid.UUID, error) {
	if m.backend == BackendPostgres {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	}
	var idStr string
	if err := row.Scan(&idStr); err != nil {
		return uuid.UUID{}, err
	}
	return uuid.Parse(idStr)
}
