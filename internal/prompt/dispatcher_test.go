package prompt

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/memory"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// fakeQueryer records every Exec call; PutMany never issues Query/QueryRow.
type fakeQueryer struct {
	mu       sync.Mutex
	execs    []string
	execErr  error
}

func (f *fakeQueryer) Exec(_ context.Context, sql string, _ ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return f.execErr
}

func (f *fakeQueryer) Query(context.Context, string, ...any) (storerouter.Rows, error) {
	panic("not used by PutMany")
}

func (f *fakeQueryer) QueryRow(context.Context, string, ...any) storerouter.Row {
	panic("not used by PutMany")
}

func (f *fakeQueryer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execs)
}

type fakeEngine struct {
	resp Response
	err  error
	got  Request
}

func (e *fakeEngine) Complete(_ context.Context, req Request) (Response, error) {
	e.got = req
	return e.resp, e.err
}

func newTestDispatcher(t *testing.T, engine ModelEngine) (*Dispatcher, *fakeQueryer, *bus.Bus) {
	t.Helper()
	q := &fakeQueryer{}
	router := storerouter.NewTestRouter(q)
	store := memory.New(router, memory.BackendPostgres, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	eventBus := bus.New()
	composer := NewComposer(Params{Temperature: 0.5}, 10)
	d := NewDispatcher(composer, engine, store, eventBus, time.Second, HumanizationConfig{}, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, q, eventBus
}

func TestDispatch_PersistsTurnAndPublishesOnHappyPath(t *testing.T) {
	engine := &fakeEngine{resp: Response{Text: "hello back", TokensUsed: 12, FinishReason: "stop"}}
	d, q, eventBus := newTestDispatcher(t, engine)
	session := testSession()

	received := make(chan bus.Event, 1)
	eventBus.Subscribe("conn-1", bus.SessionTopic(session.ID.String()), func(_ context.Context, ev bus.Event) error {
		received <- ev
		return nil
	})

	resp, err := d.Dispatch(context.Background(), session, "hi there", ingress.Classification{Category: ingress.CategoryCommunityChat}, nil, nil, Identity{}, PersonalityConfig{})
	require.NoError(t, err)
	assert.Equal(t, "hello back", resp.Text)
	assert.Equal(t, 2, q.count()) // user turn + assistant turn

	select {
	case ev := <-received:
		assert.Equal(t, "session.message", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("expected a session.message publish")
	}
}

func TestDispatch_EngineErrorWrapsUpstreamUnavailable(t *testing.T) {
	engine := &fakeEngine{err: assertError("engine down")}
	d, q, _ := newTestDispatcher(t, engine)

	_, err := d.Dispatch(context.Background(), testSession(), "hi", ingress.Classification{}, nil, nil, Identity{}, PersonalityConfig{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.ErrUpstreamUnavailable))
	assert.Equal(t, 0, q.count())
}

func TestDispatch_AppliesPersonaHumanizationOverDefault(t *testing.T) {
	engine := &fakeEngine{resp: Response{Text: "the report is ready"}}
	d, _, _ := newTestDispatcher(t, engine)

	personality := PersonalityConfig{Humanization: HumanizationConfig{TypoRate: 1}}
	resp, err := d.Dispatch(context.Background(), testSession(), "status?", ingress.Classification{}, nil, nil, Identity{}, personality)
	require.NoError(t, err)
	assert.NotEqual(t, "the report is ready", resp.Text)
}

type assertError string

func (e assertError) Error() string { return string(e) }
