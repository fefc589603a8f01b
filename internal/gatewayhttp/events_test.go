package gatewayhttp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/config"
	"github.com/raidcore/raidcore/internal/identity"
	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/memory"
	"github.com/raidcore/raidcore/internal/modelengine"
	"github.com/raidcore/raidcore/internal/prompt"
	"github.com/raidcore/raidcore/internal/raid"
	"github.com/raidcore/raidcore/internal/raid/verify"
	"github.com/raidcore/raidcore/internal/session"
	"github.com/raidcore/raidcore/internal/storerouter"
	"github.com/raidcore/raidcore/pkg/protocol"
)

// fakeQueryer answers just enough SQL to let identity.Resolver.Resolve
// allocate a new identity: every Exec succeeds, every Query returns no rows
// and every QueryRow reports no row found, whatever the statement.
type fakeQueryer struct{}

func (fakeQueryer) Exec(context.Context, string, ...any) error { return nil }
func (fakeQueryer) Query(context.Context, string, ...any) (storerouter.Rows, error) {
	return emptyRows{}, nil
}
func (fakeQueryer) QueryRow(context.Context, string, ...any) storerouter.Row {
	return noRowFound{}
}

type emptyRows struct{}

func (emptyRows) Next() bool         { return false }
func (emptyRows) Scan(...any) error  { return nil }
func (emptyRows) Close() error       { return nil }
func (emptyRows) Err() error         { return nil }

type noRowFound struct{}

func (noRowFound) Scan(...any) error { return fmt.Errorf("no rows") }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := storerouter.NewTestRouter(fakeQueryer{})
	eventBus := bus.New()

	memStore := memory.New(router, memory.BackendPostgres, memory.NoopEmbedder{}, logger)
	identResolver := identity.New(router, identity.BackendPostgres, logger)
	sessionMgr := session.New(router, session.BackendPostgres, eventBus, session.Config{}, logger)
	raidCoord := raid.New(router, raid.BackendPostgres, eventBus, verify.NewRegistry(nil), raid.Config{}, logger)

	blocklist := ingress.NewBlocklist()
	pipeline := ingress.NewPipeline(ingress.Config{}, blocklist, ingress.NewInProcessRateLimiter(100), ingress.NewDeduplicator(nil, time.Minute, 0), logger)

	composer := prompt.NewComposer(prompt.Params{}, 10)
	dispatcher := prompt.NewDispatcher(composer, modelengine.EchoEngine{}, memStore, eventBus, time.Second, prompt.HumanizationConfig{}, 1, logger)

	return NewServer(config.GatewayConfig{}, sessionMgr, raidCoord, memStore, identResolver, pipeline, map[string]ingress.Adapter{}, dispatcher, eventBus, prometheus.NewRegistry(), logger)
}

func TestHandleEvents_SubscribeThenPublishDelivers(t *testing.T) {
	s := newTestServer(t)
	httpServer := httptest.NewServer(s.BuildMux())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	topic := bus.SessionTopic(uuid.NewString())
	require.NoError(t, conn.WriteJSON(protocol.ClientMessage{Op: protocol.OpSubscribe, Topic: topic}))

	var ack protocol.SubscribeAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, protocol.EventSubscribed, ack.Event)
	require.Equal(t, topic, ack.Topic)
	require.NotEmpty(t, ack.SubscriptionID)

	s.bus.Publish(topic, bus.Event{Name: protocol.EventSessionMessage, Payload: map[string]string{"text": "hi"}})

	var msg protocol.ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, protocol.EventSessionMessage, msg.Event)
	require.Equal(t, topic, msg.Topic)
}

func TestHandleEvents_RejectsWrongToken(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Token = "secret"
	httpServer := httptest.NewServer(s.BuildMux())
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/events?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}
