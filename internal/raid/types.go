// Package raid implements the Raid Coordinator: the full raid lifecycle
// state machine (pending -> active -> {completed, timed-out, aborted}),
// participant/action bookkeeping, leaderboard ranking, and a per-raid
// monitoring loop that schedules verification and enforces the deadline.
//
// Grounded on wisbric-nightowl/pkg/escalation/engine.go's ticker-driven
// per-tenant loop for the monitoring-loop shape, and goclaw's per-key
// mutex-map convention (internal/sessions/manager.go) for per-raid
// locking.
package raid

import (
	"sort"
	"time"

	"github.com/raidcore/raidcore/internal/raid/verify"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed-out"
	StatusAborted   Status = "aborted"
)

// ObjectiveType is an alias onto verify.ObjectiveType: the verification
// adapters need this type and must not import package raid (coordinator.go
// already imports package verify), so verify.go holds the canonical
// definition and this package re-exports it under its own name.
type ObjectiveType = verify.ObjectiveType

const (
	ObjectiveLike   = verify.ObjectiveLike
	ObjectiveRepost = verify.ObjectiveRepost
	ObjectiveReply  = verify.ObjectiveReply
	ObjectiveQuote  = verify.ObjectiveQuote
	ObjectiveFollow = verify.ObjectiveFollow
)

type Objective struct {
	Type            ObjectiveType
	Target          string
	RequiredCount   int64
	PointsPerAction int64
}

type Participant struct {
	ParticipantID   string
	PlatformID      string
	DisplayName     string
	SecondaryID     string
	JoinedAt        time.Time
	ActionsCompleted int64
	PointsEarned    int64
	Verified        bool
}

type Action struct {
	ActionID      string
	ParticipantID string
	ObjectiveType ObjectiveType
	Target        string
	SubmittedAt   time.Time
	VerifiedAt    *time.Time
	Verified      bool
	Points        int64
	Proof         []byte
}

// State is the RaidState composed into raid-kind sessions. Once Status
// leaves StatusActive, Participants and ActionLog are frozen — callers
// outside this package only ever see a snapshot (State is copied out by
// Coordinator methods, never handed out by reference).
type State struct {
	RaidID          string
	Title           string
	TargetRef       string
	Objectives      []Objective
	Status          Status
	MaxParticipants int
	StartedAt       *time.Time
	EndsAt          *time.Time
	CompletedAt     *time.Time
	CompletedReason string
	Participants    map[string]*Participant
	ActionLog       []*Action
	Totals          map[ObjectiveType]int64
}

func newState(raidID string, params CreateParams) *State {
	return &State{
		RaidID:          raidID,
		Title:           params.Title,
		TargetRef:       params.TargetRef,
		Objectives:      params.Objectives,
		Status:          StatusPending,
		MaxParticipants: params.MaxParticipants,
		Participants:    make(map[string]*Participant),
		Totals:          make(map[ObjectiveType]int64),
	}
}

// CreateParams are the inputs to Coordinator.Create.
type CreateParams struct {
	Title           string
	TargetRef       string
	Objectives      []Objective
	MaxParticipants int
	Duration        time.Duration
	AutoStart       bool
}

// objectiveByType finds the declared objective for an action's type, or
// nil if none matches (an invariant violation the caller should reject
// earlier).
func (s *State) objectiveByType(t ObjectiveType) *Objective {
	for i := range s.Objectives {
		if s.Objectives[i].Type == t {
			return &s.Objectives[i]
		}
	}
	return nil
}

// satisfied reports whether every objective's totals have met its
// required count.
func (s *State) satisfied() bool {
	for _, o := range s.Objectives {
		if s.Totals[o.Type] < o.RequiredCount {
			return false
		}
	}
	return true
}

// Leaderboard returns participants ranked by (-points_earned, joined_at,
// participant_id).
func (s *State) Leaderboard(limit int) []Participant {
	out := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, *p)
	}
	sortParticipants(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortParticipants(ps []Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].PointsEarned != ps[j].PointsEarned {
			return ps[i].PointsEarned > ps[j].PointsEarned
		}
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].ParticipantID < ps[j].ParticipantID
	})
}

// Metrics is the response shape for metrics(raid_id).
type Metrics struct {
	Status           Status
	Totals           map[ObjectiveType]int64
	TimeRemaining    time.Duration
	CompletionRatio  float64
}
