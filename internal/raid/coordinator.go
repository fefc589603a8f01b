package raid

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/raid/verify"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// Config tunes the monitoring loop and verification retry policy.
type Config struct {
	PollInterval      time.Duration
	VerifyLatencyMin  time.Duration
	VerifyAdapterCap  int // max in-flight verifications per raid
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.VerifyLatencyMin <= 0 {
		c.VerifyLatencyMin = 3 * time.Second
	}
	if c.VerifyAdapterCap <= 0 {
		c.VerifyAdapterCap = 4
	}
	return c
}

type entry struct {
	id       uuid.UUID
	mu       sync.Mutex
	state    *State
	stopLoop func()
	verifySem chan struct{}
}

// Coordinator owns the raid lifecycle state machine, per-raid locking
// (goclaw's internal/sessions/manager.go per-key mutex convention,
// generalized from sessions to raids), persistence via the Router, and
// event publication via the Bus.
type Coordinator struct {
	router   *storerouter.Router
	backend  Backend
	bus      *bus.Bus
	registry *verify.Registry
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	byID   map[uuid.UUID]*entry
}

func New(router *storerouter.Router, backend Backend, b *bus.Bus, registry *verify.Registry, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		router:   router,
		backend:  backend,
		bus:      b,
		registry: registry,
		cfg:      cfg.withDefaults(),
		byID:     make(map[uuid.UUID]*entry),
		logger:   logger,
	}
}

// Create allocates a new raid in pending status. If params.AutoStart,
// Start is invoked immediately.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (State, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return State{}, err
	}
	st := newState(id.String(), params)

	_, err = storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, c.backend.insertRaid(ctx, q, id, id.String(), st)
	})
	if err != nil {
		return State{}, err
	}

	e := &entry{id: id, state: st, verifySem: make(chan struct{}, c.cfg.VerifyAdapterCap)}
	c.mu.Lock()
	c.byID[id] = e
	c.mu.Unlock()

	if params.AutoStart {
		if err := c.Start(ctx, id, params.Duration); err != nil {
			return State{}, err
		}
	}
	return *st, nil
}

// Start transitions pending -> active, setting started_at/ends_at.
func (c *Coordinator) Start(ctx context.Context, id uuid.UUID, duration time.Duration) error {
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusPending {
		return nil // idempotent: already started or past it
	}
	now := time.Now().UTC()
	ends := now.Add(duration)
	e.state.Status = StatusActive
	e.state.StartedAt = &now
	e.state.EndsAt = &ends

	if _, err := storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, c.backend.updateRaidStatus(ctx, q, id, e.state)
	}); err != nil {
		return err
	}

	c.startMonitor(e)
	c.bus.Publish(bus.RaidTopic(id.String()), bus.Event{Name: "raid.started", Payload: snapshot(e.state)})
	return nil
}

// Join adds a participant to an active raid.
func (c *Coordinator) Join(ctx context.Context, id uuid.UUID, p Participant) (Participant, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Participant{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusActive {
		return Participant{}, apierr.ErrRaidNotActive
	}
	if e.state.MaxParticipants > 0 && len(e.state.Participants) >= e.state.MaxParticipants {
		return Participant{}, apierr.ErrRaidFull
	}
	if _, exists := e.state.Participants[p.ParticipantID]; exists {
		return Participant{}, apierr.ErrAlreadyJoined
	}
	if p.ParticipantID == "" || p.PlatformID == "" {
		return Participant{}, apierr.ErrPlatformIdentityMissing
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	cp := p
	e.state.Participants[p.ParticipantID] = &cp

	if _, err := storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, c.backend.insertParticipant(ctx, q, id, &cp)
	}); err != nil {
		delete(e.state.Participants, p.ParticipantID)
		return Participant{}, err
	}

	c.bus.Publish(bus.RaidTopic(id.String()), bus.Event{Name: "raid.participant_joined", Payload: cp})
	return cp, nil
}

// RecordAction appends an unverified action and schedules verification
// after the configured latency floor, returning immediately.
func (c *Coordinator) RecordAction(ctx context.Context, id uuid.UUID, a Action) (Action, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Action{}, err
	}
	e.mu.Lock()
	if e.state.Status != StatusActive {
		e.mu.Unlock()
		return Action{}, apierr.ErrRaidNotActive
	}
	if obj := e.state.objectiveByType(a.ObjectiveType); obj == nil {
		e.mu.Unlock()
		return Action{}, apierr.ErrInvalidRequest
	}
	if a.ActionID == "" {
		a.ActionID = uuid.NewString()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	cp := a
	e.state.ActionLog = append(e.state.ActionLog, &cp)
	e.mu.Unlock()

	if _, err := storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, c.backend.insertAction(ctx, q, id, &cp)
	}); err != nil {
		return Action{}, err
	}

	go func() {
		time.Sleep(c.cfg.VerifyLatencyMin)
		c.verifyAction(context.Background(), id, cp.ActionID)
	}()

	return cp, nil
}

// verifyAction calls the platform's verification adapter, acquiring the
// raid mutex only for the mutation step — the external call runs outside
// the lock.
func (c *Coordinator) verifyAction(ctx context.Context, id uuid.UUID, actionID string) {
	e, err := c.lookup(id)
	if err != nil {
		return
	}

	e.mu.Lock()
	if e.state.Status != StatusActive {
		e.mu.Unlock()
		return
	}
	var action *Action
	for _, a := range e.state.ActionLog {
		if a.ActionID == actionID {
			action = a
			break
		}
	}
	if action == nil || action.Verified {
		e.mu.Unlock()
		return
	}
	platform, target := splitPlatformTarget(action.Target)
	participantID := action.ParticipantID
	objectiveType := action.ObjectiveType
	submittedAt := action.SubmittedAt
	e.mu.Unlock()

	select {
	case e.verifySem <- struct{}{}:
		defer func() { <-e.verifySem }()
	case <-ctx.Done():
		return
	}

	adapter := c.registry.For(platform)
	if adapter == nil {
		return
	}
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	result, err := adapter.VerifyAction(vctx, objectiveType, target, participantID, submittedAt)
	cancel()
	if err != nil || result.Outcome == verify.NotYet {
		return // retried by the next monitor tick
	}
	if result.Outcome == verify.Rejected {
		return // terminal for this action; it stays unverified forever
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != StatusActive {
		return
	}
	for _, a := range e.state.ActionLog {
		if a.ActionID != actionID || a.Verified {
			continue
		}
		now := time.Now().UTC()
		obj := e.state.objectiveByType(a.ObjectiveType)
		points := obj.PointsPerAction
		if result.PointsOverride != nil {
			points = *result.PointsOverride
		}
		a.Verified = true
		a.VerifiedAt = &now
		a.Points = points

		if p, ok := e.state.Participants[a.ParticipantID]; ok {
			p.ActionsCompleted++
			p.PointsEarned += points
			e.state.Totals[a.ObjectiveType] += points

			if _, err := storerouter.RunSimple(context.Background(), c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
				if err := c.backend.updateAction(ctx, q, id, a); err != nil {
					return struct{}{}, err
				}
				return struct{}{}, c.backend.updateParticipant(ctx, q, id, p)
			}); err != nil {
				c.logger.Error("raid.verify_action: persist failed", "raid_id", id, "action_id", actionID, "error", err)
			}
		}
		break
	}

	c.bus.Publish(bus.RaidTopic(id.String()), bus.Event{Name: "raid.progress", Payload: snapshot(e.state)})

	if e.state.satisfied() {
		c.completeLocked(context.Background(), id, e, "objectives_satisfied")
	}
}

// Leaderboard returns the ranked participant list.
func (c *Coordinator) Leaderboard(id uuid.UUID, limit int) ([]Participant, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Leaderboard(limit), nil
}

// Metrics returns current totals, time remaining, and completion ratio.
func (c *Coordinator) Metrics(id uuid.UUID) (Metrics, error) {
	e, err := c.lookup(id)
	if err != nil {
		return Metrics{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	totals := make(map[ObjectiveType]int64, len(e.state.Totals))
	for k, v := range e.state.Totals {
		totals[k] = v
	}
	var remaining time.Duration
	if e.state.EndsAt != nil {
		remaining = time.Until(*e.state.EndsAt)
		if remaining < 0 {
			remaining = 0
		}
	}

	var required, done int64
	for _, o := range e.state.Objectives {
		required += o.RequiredCount
		if t := totals[o.Type]; t < o.RequiredCount {
			done += t
		} else {
			done += o.RequiredCount
		}
	}
	ratio := 0.0
	if required > 0 {
		ratio = float64(done) / float64(required)
	}

	return Metrics{Status: e.state.Status, Totals: totals, TimeRemaining: remaining, CompletionRatio: ratio}, nil
}

// Complete is the explicit terminal transition. A no-op (not an error) if
// the raid is already in a terminal state, avoiding double-transition
// races between an operator call and auto-completion.
func (c *Coordinator) Complete(ctx context.Context, id uuid.UUID, reason string) error {
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != StatusActive {
		return nil
	}
	c.completeLocked(ctx, id, e, reason)
	return nil
}

// completeLocked assumes e.mu is held. Used both by explicit Complete and
// by verifyAction's auto-completion path.
func (c *Coordinator) completeLocked(ctx context.Context, id uuid.UUID, e *entry, reason string) {
	now := time.Now().UTC()
	e.state.Status = StatusCompleted
	e.state.CompletedAt = &now
	e.state.CompletedReason = reason

	if _, err := storerouter.RunSimple(ctx, c.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, c.backend.updateRaidStatus(ctx, q, id, e.state)
	}); err != nil {
		c.logger.Error("raid.complete: persist failed", "raid_id", id, "error", err)
	}
	if e.stopLoop != nil {
		e.stopLoop()
	}
	c.bus.Publish(bus.RaidTopic(id.String()), bus.Event{Name: "raid.ended", Payload: snapshot(e.state)})
}

// ActiveRaids returns the ids of every raid currently in StatusActive, in
// no particular order. Used by the gateway to resolve a raid-control chat
// command that names no raid id of its own.
func (c *Coordinator) ActiveRaids() []uuid.UUID {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.byID))
	ids := make([]uuid.UUID, 0, len(c.byID))
	for id, e := range c.byID {
		entries = append(entries, e)
		ids = append(ids, id)
	}
	c.mu.Unlock()

	active := ids[:0]
	for i, e := range entries {
		e.mu.Lock()
		isActive := e.state.Status == StatusActive
		e.mu.Unlock()
		if isActive {
			active = append(active, ids[i])
		}
	}
	return active
}

func (c *Coordinator) lookup(id uuid.UUID) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, apierr.ErrInvalidRequest
	}
	return e, nil
}

func snapshot(s *State) State {
	cp := *s
	participants := make(map[string]*Participant, len(s.Participants))
	for k, v := range s.Participants {
		pcp := *v
		participants[k] = &pcp
	}
	cp.Participants = participants
	return cp
}

// splitPlatformTarget splits a "platform:ref" action target into the
// platform name and the adapter-specific ref, the convention ingress
// adapters use when recording an action's external reference.
func splitPlatformTarget(target string) (platform, ref string) {
	for i := 0; i < len(target); i++ {
		if target[i] == ':' {
			return target[:i], target[i+1:]
		}
	}
	return "", target
}
