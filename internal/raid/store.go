package raid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/storerouter"
)

// Backend picks placeholder style, matching internal/memory.Backend and
// internal/identity.Backend since all three sit atop the same Router.
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

type raidRow struct {
	id              uuid.UUID
	raidRef         string
	title           string
	targetRef       string
	status          Status
	objectives      []Objective
	maxParticipants int
	createdAt       time.Time
	startedAt       *time.Time
	endsAt          *time.Time
	completedAt     *time.Time
	completedReason string
}

func (b Backend) insertRaid(ctx context.Context, q storerouter.Queryer, id uuid.UUID, raidRef string, s *State) error {
	objJSON, err := json.Marshal(s.Objectives)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if b == BackendPostgres {
		return q.Exec(ctx, `INSERT INTO raids (id, raid_ref, title, target_ref, status, objectives, max_participants, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			id, raidRef, s.Title, s.TargetRef, string(s.Status), objJSON, s.MaxParticipants, now)
	}
	return q.Exec(ctx, `INSERT INTO raids (id, raid_ref, title, target_ref, status, objectives, max_participants, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		id.String(), raidRef, s.Title, s.TargetRef, string(s.Status), string(objJSON), s.MaxParticipants, now.Format(time.RFC3339Nano))
}

func (b Backend) updateRaidStatus(ctx context.Context, q storerouter.Queryer, id uuid.UUID, s *State) error {
	idArg := b.idArg(id)
	startedAt := b.timeArg(s.StartedAt)
	endsAt := b.timeArg(s.EndsAt)
	completedAt := b.timeArg(s.CompletedAt)

	return q.Exec(ctx, `UPDATE raids SET status = `+b.ph(1)+`, started_at = `+b.ph(2)+`, ends_at = `+b.ph(3)+
		`, completed_at = `+b.ph(4)+`, completed_reason = `+b.ph(5)+` WHERE id = `+b.ph(6),
		string(s.Status), startedAt, endsAt, completedAt, s.CompletedReason, idArg)
}

func (b Backend) insertParticipant(ctx context.Context, q storerouter.Queryer, raidID uuid.UUID, p *Participant) error {
	if b == BackendPostgres {
		return q.Exec(ctx, `INSERT INTO raid_participants (raid_id, participant_id, platform_id, display_name, secondary_id, joined_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			raidID, p.ParticipantID, p.PlatformID, p.DisplayName, p.SecondaryID, p.JoinedAt)
	}
	return q.Exec(ctx, `INSERT INTO raid_participants (raid_id, participant_id, platform_id, display_name, secondary_id, joined_at)
		VALUES (?,?,?,?,?,?)`,
		raidID.String(), p.ParticipantID, p.PlatformID, p.DisplayName, p.SecondaryID, p.JoinedAt.Format(time.RFC3339Nano))
}

func (b Backend) updateParticipant(ctx context.Context, q storerouter.Queryer, raidID uuid.UUID, p *Participant) error {
	return q.Exec(ctx, `UPDATE raid_participants SET actions_completed = `+b.ph(1)+`, points_earned = `+b.ph(2)+`, verified = `+b.ph(3)+
		` WHERE raid_id = `+b.ph(4)+` AND participant_id = `+b.ph(5),
		p.ActionsCompleted, p.PointsEarned, p.Verified, b.idArg(raidID), p.ParticipantID)
}

func (b Backend) insertAction(ctx context.Context, q storerouter.Queryer, raidID uuid.UUID, a *Action) error {
	if b == BackendPostgres {
		return q.Exec(ctx, `INSERT INTO raid_actions (action_id, raid_id, participant_id, objective_type, target, submitted_at, verified, points, proof)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ActionID, raidID, a.ParticipantID, string(a.ObjectiveType), a.Target, a.SubmittedAt, a.Verified, a.Points, a.Proof)
	}
	return q.Exec(ctx, `INSERT INTO raid_actions (action_id, raid_id, participant_id, objective_type, target, submitted_at, verified, points, proof)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ActionID, raidID.String(), a.ParticipantID, string(a.ObjectiveType), a.Target, a.SubmittedAt.Format(time.RFC3339Nano), a.Verified, a.Points, a.Proof)
}

func (b Backend) updateAction(ctx context.Context, q storerouter.Queryer, raidID uuid.UUID, a *Action) error {
	verifiedAt := b.timeArg(a.VerifiedAt)
	return q.Exec(ctx, `UPDATE raid_actions SET verified = `+b.ph(1)+`, verified_at = `+b.ph(2)+`, points = `+b.ph(3)+
		` WHERE raid_id = `+b.ph(4)+` AND action_id = `+b.ph(5),
		a.Verified, verifiedAt, a.Points, b.idArg(raidID), a.ActionID)
}

func (b Backend) idArg(id uuid.UUID) any {
	if b == BackendPostgres {
		return id
	}
	return id.String()
}

func (b Backend) timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	if b == BackendPostgres {
		return *t
	}
	return t.Format(time.RFC3339Nano)
}
