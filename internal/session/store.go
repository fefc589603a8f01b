package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/storerouter"
)

// Backend picks placeholder style, matching internal/memory.Backend,
// internal/identity.Backend, and internal/raid.Backend — all four sit
// atop the same Router.
type Backend int

const (
	BackendPostgres Backend = iota
	BackendSQLite
)

func (b Backend) ph(n int) string {
	if b == BackendPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (b Backend) idArg(id uuid.UUID) any {
	if b == BackendPostgres {
		return id
	}
	return id.String()
}

func (b Backend) nullIDArg(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return b.idArg(*id)
}

func (b Backend) timeArg(t time.Time) any {
	if b == BackendPostgres {
		return t
	}
	return t.Format(time.RFC3339Nano)
}

func (b Backend) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return b.timeArg(*t)
}

func (b Backend) insert(ctx context.Context, q storerouter.Queryer, s *Session) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	if b == BackendPostgres {
		return q.Exec(ctx, `INSERT INTO sessions
			(id, agent_id, user_id, room_key, kind, status, renewal_policy, timeout_ms, message_count, metadata, raid_id, created_at, last_activity_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			s.ID, s.AgentID, nullString(s.UserID), s.RoomID, string(s.Kind), string(s.State), string(s.RenewalPolicy),
			s.TimeoutMS, s.MessageCount, meta, b.nullIDArg(s.RaidID), s.CreatedAt, s.LastActivityAt, s.ExpiresAt)
	}
	return q.Exec(ctx, `INSERT INTO sessions
		(id, agent_id, user_id, room_key, kind, status, renewal_policy, timeout_ms, message_count, metadata, raid_id, created_at, last_activity_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID.String(), s.AgentID, nullString(s.UserID), s.RoomID, string(s.Kind), string(s.State), string(s.RenewalPolicy),
		s.TimeoutMS, s.MessageCount, string(meta), b.nullIDArg(s.RaidID), b.timeArg(s.CreatedAt), b.timeArg(s.LastActivityAt), b.timeArg(s.ExpiresAt))
}

// updateActivity persists message_count, last_activity_at, and expires_at
// together — the three fields update_activity/heartbeat/renew ever touch.
func (b Backend) updateActivity(ctx context.Context, q storerouter.Queryer, s *Session) error {
	return q.Exec(ctx, `UPDATE sessions SET message_count = `+b.ph(1)+`, last_activity_at = `+b.ph(2)+
		`, expires_at = `+b.ph(3)+` WHERE id = `+b.ph(4),
		s.MessageCount, b.timeArg(s.LastActivityAt), b.timeArg(s.ExpiresAt), b.idArg(s.ID))
}

func (b Backend) updateState(ctx context.Context, q storerouter.Queryer, s *Session) error {
	return q.Exec(ctx, `UPDATE sessions SET status = `+b.ph(1)+`, ended_at = `+b.ph(2)+`, ended_reason = `+b.ph(3)+
		` WHERE id = `+b.ph(4),
		string(s.State), b.nullTimeArg(s.EndedAt), s.EndedReason, b.idArg(s.ID))
}

func (b Backend) deleteTerminalBefore(ctx context.Context, q storerouter.Queryer, cutoff time.Time) error {
	return q.Exec(ctx, `DELETE FROM sessions WHERE status != 'active' AND ended_at < `+b.ph(1), b.timeArg(cutoff))
}

// findTerminalBeforeQuery mirrors deleteTerminalBefore's WHERE clause so
// the sweep can collect the ids about to be purged and gc their locks,
// without racing a goroutine that's still holding the lock for one of
// them (select-then-lock-then-delete, not delete-then-guess).
func (b Backend) findTerminalBeforeQuery() string {
	return `SELECT id FROM sessions WHERE status != 'active' AND ended_at < ` + b.ph(1)
}

// findExpiringQuery returns the SQL that selects the ids of active sessions
// whose expires_at has passed, used by the sweep loop; scanning is left to
// the caller since the row
// shape (id only) doesn't warrant a dedicated scan helper per backend.
func (b Backend) findExpiringQuery() string {
	return `SELECT id FROM sessions WHERE status = 'active' AND expires_at <= ` + b.ph(1)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
