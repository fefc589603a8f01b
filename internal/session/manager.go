package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// Config tunes the cleanup sweep; see sweep.go.
type Config struct {
	SweepCronExpr string // gronx expression, e.g. "@every 60s"
	Retention     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SweepCronExpr == "" {
		c.SweepCronExpr = "@every 60s"
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	return c
}

// Manager owns every Session mutation, serialized per-session via a
// per-id lock (goclaw's internal/sessions.Manager per-key-mutex
// convention, generalized from a bare map-of-pointers to a
// Router-persisted record with its own timeout/renewal machinery).
type Manager struct {
	router  *storerouter.Router
	backend Backend
	bus     *bus.Bus
	cfg     Config
	logger  *slog.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	stopSweep func()
}

func New(router *storerouter.Router, backend Backend, b *bus.Bus, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		router:  router,
		backend: backend,
		bus:     b,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// gcLocks drops the lock entries for the given session ids, called from
// the sweep loop so the map doesn't grow without bound over a
// long-running process. reaped must contain only ids the sweep itself
// just confirmed are terminal (expired this tick, or purged by
// retention) — every other session's lock is left untouched, since a
// healthy active session can be mutated at any time and evicting its
// lock would let a new caller allocate a second, unsynchronized mutex
// for the same id.
func (m *Manager) gcLocks(reaped map[uuid.UUID]struct{}) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	for id := range reaped {
		delete(m.locks, id)
	}
}

// Create allocates a new session in active state.
func (m *Manager) Create(ctx context.Context, params CreateParams) (Session, error) {
	params = params.withDefaults()
	if params.AgentID == "" || params.RoomID == "" {
		return Session{}, apierr.ErrInvalidRequest
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		AgentID:        params.AgentID,
		UserID:         params.UserID,
		RoomID:         params.RoomID,
		Kind:           params.Kind,
		State:          StateActive,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Duration(params.TimeoutMS) * time.Millisecond),
		TimeoutMS:      params.TimeoutMS,
		RenewalPolicy:  params.RenewalPolicy,
		Metadata:       params.Metadata,
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}

	if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, m.backend.insert(ctx, q, s)
	}); err != nil {
		return Session{}, err
	}

	m.bus.Publish(bus.SessionTopic(id.String()), bus.Event{Name: "session.created", Payload: *s})
	return *s, nil
}

// Get reads a snapshot. An expired session is returned with its terminal
// state, never as "not found" — the sweep may not have run yet, so Get
// computes the boundary-crossing itself rather than trusting a stale row.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	s, err := m.fetch(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.State == StateActive && !time.Now().UTC().Before(s.ExpiresAt) {
		s.State = StateExpired
	}
	return *s, nil
}

func (m *Manager) fetch(ctx context.Context, id uuid.UUID) (*Session, error) {
	row, err := storerouter.RunSimple(ctx, m.router, true, func(ctx context.Context, q storerouter.Queryer) (storerouter.Row, error) {
		return q.QueryRow(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = `+m.backend.ph(1), m.backend.idArg(id)), nil
	})
	if err != nil {
		return nil, err
	}
	s, err := m.backend.scanSession(row)
	if err != nil {
		return nil, apierr.ErrSessionNotFound.Wrap(err)
	}
	return s, nil
}

// UpdateActivity bumps last_activity_at, increments message_count by
// delta, and — under on-activity renewal — pushes expires_at forward.
func (m *Manager) UpdateActivity(ctx context.Context, id uuid.UUID, delta int64) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.fetch(ctx, id)
	if err != nil {
		return err
	}
	if s.State != StateActive {
		return apierr.ErrSessionNotActive
	}
	now := time.Now().UTC()
	if !now.Before(s.ExpiresAt) {
		s.State = StateExpired
		if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
			return struct{}{}, m.backend.updateState(ctx, q, s)
		}); err != nil {
			m.logger.Error("session.update_activity: persist expiry failed", "session_id", id, "error", err)
		}
		return apierr.ErrSessionNotActive
	}

	s.MessageCount += delta
	s.LastActivityAt = now
	if s.RenewalPolicy == RenewalOnActivity {
		s.ExpiresAt = now.Add(time.Duration(s.TimeoutMS) * time.Millisecond)
	}

	_, err = storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, m.backend.updateActivity(ctx, q, s)
	})
	return err
}

// Heartbeat is update_activity with delta=0 — it still bumps
// last_activity_at and renews expiry under on-activity policy, but
// leaves message_count untouched.
func (m *Manager) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return m.UpdateActivity(ctx, id, 0)
}

// Renew explicitly extends expires_at, allowed only while active.
func (m *Manager) Renew(ctx context.Context, id uuid.UUID, extra time.Duration) (time.Time, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.fetch(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if s.State != StateActive {
		return time.Time{}, apierr.ErrSessionNotActive
	}
	now := time.Now().UTC()
	if extra <= 0 {
		extra = time.Duration(s.TimeoutMS) * time.Millisecond
	}
	s.ExpiresAt = now.Add(extra)
	s.LastActivityAt = now

	if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, m.backend.updateActivity(ctx, q, s)
	}); err != nil {
		return time.Time{}, err
	}
	return s.ExpiresAt, nil
}

// End transitions a session to a terminal state and freezes mutation.
func (m *Manager) End(ctx context.Context, id uuid.UUID, reason string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.fetch(ctx, id)
	if err != nil {
		return err
	}
	if s.State != StateActive {
		return nil // already terminal: idempotent no-op
	}
	now := time.Now().UTC()
	s.State = StateCompleted
	s.EndedAt = &now
	s.EndedReason = reason

	if _, err := storerouter.RunSimple(ctx, m.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, m.backend.updateState(ctx, q, s)
	}); err != nil {
		return err
	}
	m.bus.Publish(bus.SessionTopic(id.String()), bus.Event{Name: "session.ended", Payload: *s})
	return nil
}
