// Package session implements the Session Manager: the durable
// conversation/community/raid context that every ingress message attaches
// to, its timeout/renewal machinery, and the background cleanup sweep.
//
// Grounded on goclaw's internal/sessions (key-builder conventions, the
// per-key-lock Manager shape) and internal/store/pg/sessions.go (the
// in-memory-snapshot-over-Postgres pattern this package's Store
// generalizes to cover timeout/kind/raid fields goclaw's own Session
// never needed).
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/raid"
)

type Kind string

const (
	KindConversation Kind = "conversation"
	KindCommunity    Kind = "community"
	KindRaid         Kind = "raid"
)

type State string

const (
	StateActive    State = "active"
	StateExpired   State = "expired"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type RenewalPolicy string

const (
	RenewalNone       RenewalPolicy = "none"
	RenewalOnActivity RenewalPolicy = "on-activity"
	RenewalExplicit   RenewalPolicy = "explicit"
)

// Session is the durable context every inbound message attaches to. Raid
// is non-nil only when Kind == KindRaid: a discriminated variant rather
// than duck-typed property access on a shared base type.
type Session struct {
	ID             uuid.UUID
	AgentID        string
	UserID         string
	RoomID         string
	Kind           Kind
	State          State
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	TimeoutMS      int64
	RenewalPolicy  RenewalPolicy
	MessageCount   int64
	Metadata       map[string]any
	RaidID         *uuid.UUID
	Raid           *raid.State
	EndedAt        *time.Time
	EndedReason    string
}

// CreateParams are the inputs to Manager.Create.
type CreateParams struct {
	AgentID       string
	UserID        string
	RoomID        string
	Kind          Kind
	TimeoutMS     int64
	RenewalPolicy RenewalPolicy
	Metadata      map[string]any
}

func (p CreateParams) withDefaults() CreateParams {
	if p.TimeoutMS <= 0 {
		p.TimeoutMS = 1_800_000 // 30 minutes
	}
	if p.RenewalPolicy == "" {
		p.RenewalPolicy = RenewalOnActivity
	}
	if p.Kind == "" {
		p.Kind = KindConversation
	}
	return p
}
