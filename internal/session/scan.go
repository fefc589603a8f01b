package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/storerouter"
)

// scanSession reads one sessions row. Column order must match
// selectColumns below.
func (b Backend) scanSession(row storerouter.Row) (*Session, error) {
	var (
		s          Session
		userID     *string
		kindRaw    string
		stateRaw   string
		renewalRaw string
		metaRaw    []byte
	)

	if b == BackendPostgres {
		var id uuid.UUID
		var raidID *uuid.UUID
		var createdAt, lastActivityAt, expiresAt time.Time
		var endedAt *time.Time
		if err := row.Scan(&id, &s.AgentID, &userID, &s.RoomID, &kindRaw, &stateRaw, &renewalRaw,
			&s.TimeoutMS, &s.MessageCount, &metaRaw, &raidID, &createdAt, &lastActivityAt, &expiresAt,
			&endedAt, &s.EndedReason); err != nil {
			return nil, err
		}
		s.ID, s.RaidID = id, raidID
		s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.EndedAt = createdAt, lastActivityAt, expiresAt, endedAt
	} else {
		var idStr string
		var raidIDStr *string
		var createdStr, lastStr, expStr string
		var endedStr *string
		if err := row.Scan(&idStr, &s.AgentID, &userID, &s.RoomID, &kindRaw, &stateRaw, &renewalRaw,
			&s.TimeoutMS, &s.MessageCount, &metaRaw, &raidIDStr, &createdStr, &lastStr, &expStr,
			&endedStr, &s.EndedReason); err != nil {
			return nil, err
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		s.ID = id

		if raidIDStr != nil {
			rid, err := uuid.Parse(*raidIDStr)
			if err != nil {
				return nil, err
			}
			s.RaidID = &rid
		}

		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr); err != nil {
			return nil, err
		}
		if s.LastActivityAt, err = time.Parse(time.RFC3339Nano, lastStr); err != nil {
			return nil, err
		}
		if s.ExpiresAt, err = time.Parse(time.RFC3339Nano, expStr); err != nil {
			return nil, err
		}
		if endedStr != nil {
			t, err := time.Parse(time.RFC3339Nano, *endedStr)
			if err != nil {
				return nil, err
			}
			s.EndedAt = &t
		}
	}

	s.Kind = Kind(kindRaw)
	s.State = State(stateRaw)
	s.RenewalPolicy = RenewalPolicy(renewalRaw)
	if userID != nil {
		s.UserID = *userID
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &s.Metadata); err != nil {
			return nil, err
		}
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	return &s, nil
}

const selectColumns = `id, agent_id, user_id, room_key, kind, status, renewal_policy, timeout_ms, message_count, metadata, raid_id, created_at, last_activity_at, expires_at, ended_at, ended_reason`
