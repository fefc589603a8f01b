package raid

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/raid/verify"
	"github.com/raidcore/raidcore/internal/storerouter"
)

type noopQueryer struct{}

func (noopQueryer) Exec(ctx context.Context, sql string, args ...any) error { return nil }
func (noopQueryer) Query(ctx context.Context, sql string, args ...any) (storerouter.Rows, error) {
	return nil, nil
}
func (noopQueryer) QueryRow(ctx context.Context, sql string, args ...any) storerouter.Row { return nil }

type fakeVerifier struct{ result verify.Result }

func (f fakeVerifier) VerifyAction(ctx context.Context, objectiveType ObjectiveType, target, participantRef string, submittedAt time.Time) (verify.Result, error) {
	return f.result, nil
}

func newTestCoordinator(t *testing.T, adapter verify.Adapter) *Coordinator {
	t.Helper()
	router := storerouter.NewTestRouter(noopQueryer{})
	b := bus.New()
	reg := verify.NewRegistry(adapter)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(router, BackendPostgres, b, reg, Config{
		PollInterval:     50 * time.Millisecond,
		VerifyLatencyMin: 10 * time.Millisecond,
	}, logger)
}

func TestCreateJoinRecordVerify_HappyPath(t *testing.T) {
	c := newTestCoordinator(t, fakeVerifier{result: verify.Result{Outcome: verify.Verified}})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateParams{
		Title:           "raid",
		Objectives:      []Objective{{Type: ObjectiveLike, RequiredCount: 2, PointsPerAction: 10}},
		MaxParticipants: 3,
		Duration:        time.Minute,
		AutoStart:       true,
	})
	require.NoError(t, err)
	id, err := uuid.Parse(st.RaidID)
	require.NoError(t, err)

	p1, err := c.Join(ctx, id, Participant{ParticipantID: "p1", PlatformID: "plat1"})
	require.NoError(t, err)
	_, err = c.Join(ctx, id, Participant{ParticipantID: "p2", PlatformID: "plat2"})
	require.NoError(t, err)

	_, err = c.Join(ctx, id, Participant{ParticipantID: "p1", PlatformID: "plat1"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrAlreadyJoined))

	_, err = c.RecordAction(ctx, id, Action{ParticipantID: p1.ParticipantID, ObjectiveType: ObjectiveLike, Target: "discord:chan/msg"})
	require.NoError(t, err)
	_, err = c.RecordAction(ctx, id, Action{ParticipantID: "p2", ObjectiveType: ObjectiveLike, Target: "discord:chan/msg"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := c.Metrics(id)
		require.NoError(t, err)
		return m.Status == StatusCompleted
	}, time.Second, 10*time.Millisecond)

	m, err := c.Metrics(id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), m.Totals[ObjectiveLike])

	board, err := c.Leaderboard(id, 10)
	require.NoError(t, err)
	assert.Len(t, board, 2)
}

func TestJoin_RejectsWhenRaidFull(t *testing.T) {
	c := newTestCoordinator(t, fakeVerifier{result: verify.Result{Outcome: verify.NotYet}})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateParams{
		Title:           "raid",
		Objectives:      []Objective{{Type: ObjectiveLike, RequiredCount: 100, PointsPerAction: 1}},
		MaxParticipants: 1,
		Duration:        time.Minute,
		AutoStart:       true,
	})
	require.NoError(t, err)
	id, _ := uuid.Parse(st.RaidID)

	_, err = c.Join(ctx, id, Participant{ParticipantID: "p1", PlatformID: "plat1"})
	require.NoError(t, err)

	_, err = c.Join(ctx, id, Participant{ParticipantID: "p2", PlatformID: "plat2"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrRaidFull))
}

func TestJoin_RejectsWhenRaidNotActive(t *testing.T) {
	c := newTestCoordinator(t, fakeVerifier{})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateParams{
		Title:           "raid",
		Objectives:      []Objective{{Type: ObjectiveLike, RequiredCount: 1, PointsPerAction: 1}},
		MaxParticipants: 1,
		Duration:        time.Minute,
	})
	require.NoError(t, err)
	id, _ := uuid.Parse(st.RaidID)

	_, err = c.Join(ctx, id, Participant{ParticipantID: "p1", PlatformID: "plat1"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrRaidNotActive))
}

func TestPointsOverride_WinsOverDeclaredPoints(t *testing.T) {
	override := int64(99)
	c := newTestCoordinator(t, fakeVerifier{result: verify.Result{Outcome: verify.Verified, PointsOverride: &override}})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateParams{
		Title:           "raid",
		Objectives:      []Objective{{Type: ObjectiveLike, RequiredCount: 50, PointsPerAction: 10}},
		MaxParticipants: 3,
		Duration:        time.Minute,
		AutoStart:       true,
	})
	require.NoError(t, err)
	id, _ := uuid.Parse(st.RaidID)

	_, err = c.Join(ctx, id, Participant{ParticipantID: "p1", PlatformID: "plat1"})
	require.NoError(t, err)
	_, err = c.RecordAction(ctx, id, Action{ParticipantID: "p1", ObjectiveType: ObjectiveLike, Target: "discord:chan/msg"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := c.Metrics(id)
		require.NoError(t, err)
		return m.Totals[ObjectiveLike] == override
	}, time.Second, 10*time.Millisecond)
}

func TestComplete_IsIdempotentNoOpWhenAlreadyTerminal(t *testing.T) {
	c := newTestCoordinator(t, fakeVerifier{})
	ctx := context.Background()

	st, err := c.Create(ctx, CreateParams{
		Title:           "raid",
		Objectives:      []Objective{{Type: ObjectiveLike, RequiredCount: 1, PointsPerAction: 1}},
		MaxParticipants: 1,
		Duration:        time.Minute,
		AutoStart:       true,
	})
	require.NoError(t, err)
	id, _ := uuid.Parse(st.RaidID)

	require.NoError(t, c.Complete(ctx, id, "operator_complete"))
	require.NoError(t, c.Complete(ctx, id, "operator_complete_again"))

	m, err := c.Metrics(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, m.Status)
}

func TestLeaderboard_OrdersByPointsThenJoinedAtThenID(t *testing.T) {
	st := &State{
		Participants: map[string]*Participant{
			"b": {ParticipantID: "b", PointsEarned: 10, JoinedAt: time.Unix(100, 0)},
			"a": {ParticipantID: "a", PointsEarned: 10, JoinedAt: time.Unix(100, 0)},
			"c": {ParticipantID: "c", PointsEarned: 20, JoinedAt: time.Unix(200, 0)},
		},
	}
	board := st.Leaderboard(10)
	require.Len(t, board, 3)
	assert.Equal(t, "c", board[0].ParticipantID)
	assert.Equal(t, "a", board[1].ParticipantID)
	assert.Equal(t, "b", board[2].ParticipantID)
}
