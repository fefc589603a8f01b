package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// fakeSessionRow holds one sessions row as a struct with one field per
// column, standing in for what a real driver would hand back to scanSession.
type fakeSessionRow struct {
	id             uuid.UUID
	agentID        string
	userID         *string
	roomKey        string
	kind           string
	status         string
	renewalPolicy  string
	timeoutMS      int64
	messageCount   int64
	metadata       []byte
	raidID         *uuid.UUID
	createdAt      time.Time
	lastActivityAt time.Time
	expiresAt      time.Time
	endedAt        *time.Time
	endedReason    string
}

type fakeQueryer struct {
	rows map[uuid.UUID]*fakeSessionRow
}

func newFakeQueryer() *fakeQueryer {
	return &fakeQueryer{rows: make(map[uuid.UUID]*fakeSessionRow)}
}

func (f *fakeQueryer) Exec(ctx context.Context, sql string, args ...any) error {
	switch {
	case strings.Contains(sql, "INSERT INTO sessions"):
		meta, _ := json.Marshal(map[string]any{})
		if b, ok := args[9].([]byte); ok {
			meta = b
		}
		var userID *string
		if s, ok := args[2].(string); ok {
			userID = &s
		}
		var raidID *uuid.UUID
		if u, ok := args[10].(uuid.UUID); ok {
			raidID = &u
		}
		row := &fakeSessionRow{
			id: args[0].(uuid.UUID), agentID: args[1].(string), userID: userID,
			roomKey: args[3].(string), kind: args[4].(string), status: args[5].(string),
			renewalPolicy: args[6].(string), timeoutMS: args[7].(int64), messageCount: args[8].(int64),
			metadata: meta, raidID: raidID,
			createdAt: args[11].(time.Time), lastActivityAt: args[12].(time.Time), expiresAt: args[13].(time.Time),
		}
		f.rows[row.id] = row
	case strings.Contains(sql, "UPDATE sessions SET message_count"):
		id := args[3].(uuid.UUID)
		row, ok := f.rows[id]
		if !ok {
			return fmt.Errorf("no such session")
		}
		row.messageCount = args[0].(int64)
		row.lastActivityAt = args[1].(time.Time)
		row.expiresAt = args[2].(time.Time)
	case strings.Contains(sql, "UPDATE sessions SET status"):
		id := args[3].(uuid.UUID)
		row, ok := f.rows[id]
		if !ok {
			return fmt.Errorf("no such session")
		}
		row.status = args[0].(string)
		if t, ok := args[1].(time.Time); ok {
			row.endedAt = &t
		}
		row.endedReason = args[2].(string)
	case strings.Contains(sql, "DELETE FROM sessions"):
		cutoff := args[0].(time.Time)
		for id, row := range f.rows {
			if row.status != "active" && row.endedAt != nil && row.endedAt.Before(cutoff) {
				delete(f.rows, id)
			}
		}
	default:
		return fmt.Errorf("fakeQueryer: unhandled exec: %s", sql)
	}
	return nil
}

func (f *fakeQueryer) Query(ctx context.Context, sql string, args ...any) (storerouter.Rows, error) {
	if !strings.Contains(sql, "SELECT id FROM sessions") {
		return nil, fmt.Errorf("fakeQueryer: unhandled query: %s", sql)
	}
	cutoff := args[0].(time.Time)
	var ids []uuid.UUID
	for id, row := range f.rows {
		if row.status == "active" && !row.expiresAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return &fakeIDRows{ids: ids}, nil
}

func (f *fakeQueryer) QueryRow(ctx context.Context, sql string, args ...any) storerouter.Row {
	if !strings.Contains(sql, "SELECT "+selectColumns) {
		return &fakeRow{err: fmt.Errorf("fakeQueryer: unhandled query row: %s", sql)}
	}
	id := args[0].(uuid.UUID)
	row, ok := f.rows[id]
	if !ok {
		return &fakeRow{err: fmt.Errorf("no rows")}
	}
	return &fakeRow{row: row}
}

type fakeRow struct {
	row *fakeSessionRow
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	row := r.row
	*dest[0].(*uuid.UUID) = row.id
	*dest[1].(*string) = row.agentID
	*dest[2].(**string) = row.userID
	*dest[3].(*string) = row.roomKey
	*dest[4].(*string) = row.kind
	*dest[5].(*string) = row.status
	*dest[6].(*string) = row.renewalPolicy
	*dest[7].(*int64) = row.timeoutMS
	*dest[8].(*int64) = row.messageCount
	*dest[9].(*[]byte) = row.metadata
	*dest[10].(**uuid.UUID) = row.raidID
	*dest[11].(*time.Time) = row.createdAt
	*dest[12].(*time.Time) = row.lastActivityAt
	*dest[13].(*time.Time) = row.expiresAt
	*dest[14].(**time.Time) = row.endedAt
	*dest[15].(*string) = row.endedReason
	return nil
}

type fakeIDRows struct {
	ids []uuid.UUID
	i   int
}

func (r *fakeIDRows) Next() bool { return r.i < len(r.ids) }
func (r *fakeIDRows) Scan(dest ...any) error {
	*dest[0].(*uuid.UUID) = r.ids[r.i]
	r.i++
	return nil
}
func (r *fakeIDRows) Close() error { return nil }
func (r *fakeIDRows) Err() error   { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeQueryer) {
	t.Helper()
	q := newFakeQueryer()
	router := storerouter.NewTestRouter(q)
	b := bus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(router, BackendPostgres, b, Config{}, logger), q
}

func TestCreate_AllocatesActiveSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, CreateParams{AgentID: "a1", RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, StateActive, s.State)
	assert.Equal(t, KindConversation, s.Kind)
	assert.True(t, s.ExpiresAt.After(s.CreatedAt))
}

func TestUpdateActivity_IsMonotonicAndRenews(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, CreateParams{AgentID: "a1", RoomID: "r1", TimeoutMS: 60_000, RenewalPolicy: RenewalOnActivity})
	require.NoError(t, err)
	firstExpiry := s.ExpiresAt

	require.NoError(t, m.UpdateActivity(ctx, s.ID, 1))
	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.MessageCount)
	assert.True(t, !got.ExpiresAt.Before(firstExpiry))

	require.NoError(t, m.UpdateActivity(ctx, s.ID, 2))
	got2, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got2.MessageCount)
	assert.True(t, !got2.LastActivityAt.Before(got.LastActivityAt))
}

func TestHeartbeat_DoesNotIncrementMessageCount(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, CreateParams{AgentID: "a1", RoomID: "r1"})
	require.NoError(t, err)
	require.NoError(t, m.UpdateActivity(ctx, s.ID, 5))

	require.NoError(t, m.Heartbeat(ctx, s.ID))
	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.MessageCount)
}

func TestUpdateActivity_RejectsOnExpiredSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, CreateParams{AgentID: "a1", RoomID: "r1", TimeoutMS: 1})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	err = m.UpdateActivity(ctx, s.ID, 1)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrSessionNotActive))
}

func TestEnd_IsIdempotentAndFreezesMutation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, CreateParams{AgentID: "a1", RoomID: "r1"})
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, s.ID, "manual"))
	require.NoError(t, m.End(ctx, s.ID, "manual_again"))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.Equal(t, "manual", got.EndedReason)

	err = m.UpdateActivity(ctx, s.ID, 1)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrSessionNotActive))
}

func TestGet_UnknownSessionReturnsNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Get(context.Background(), uuid.Must(uuid.NewV7()))
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrSessionNotFound))
}
