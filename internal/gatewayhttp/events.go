package gatewayhttp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/pkg/protocol"
)

const wsWriteTimeout = 2 * time.Second

// handleEvents upgrades to the WS /events subscribe/publish protocol
// (pkg/protocol): subscribe/unsubscribe client frames, session.*/raid.*
// server pushes. Per spec §4.7, a connection must present a token that
// maps to an internal_id before any subscribe is accepted; this reuses
// the same bearer token the HTTP routes check and resolves it through the
// Identity Resolver under a dedicated "gateway" platform so a live WS
// connection always has a stable internal_id behind it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if s.cfg.Token != "" && token != s.cfg.Token {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid token")
		return
	}

	if _, err := s.identity.Resolve(r.Context(), "gateway", gatewayIdentityKey(token), token != ""); err != nil {
		s.logger.Warn("gatewayhttp.ws_identity_resolve_failed", "error", err)
		writeAPIError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("gatewayhttp.ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	defer s.bus.Close(connID)

	var writeMu sync.Mutex
	deliver := func(ctx context.Context, ev bus.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(wsWriteTimeout)
		}
		_ = conn.SetWriteDeadline(deadline)
		return conn.WriteJSON(protocol.NewServerMessage(ev.Name, ev.Topic, ev.Payload))
	}

	for {
		var msg protocol.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Op {
		case protocol.OpSubscribe:
			if msg.Topic == "" {
				s.writeWSError(conn, &writeMu, "InvalidRequest", "topic is required")
				continue
			}
			subID := s.bus.Subscribe(connID, msg.Topic, deliver)
			s.writeWSFrame(conn, &writeMu, protocol.SubscribeAck{
				Event:          protocol.EventSubscribed,
				SubscriptionID: subID.String(),
				Topic:          msg.Topic,
			})
		case protocol.OpUnsubscribe:
			subID, err := uuid.Parse(msg.SubscriptionID)
			if err != nil {
				s.writeWSError(conn, &writeMu, "InvalidRequest", "invalid subscription_id")
				continue
			}
			s.bus.Unsubscribe(subID)
			s.writeWSFrame(conn, &writeMu, protocol.SubscribeAck{
				Event:          protocol.EventUnsubscribed,
				SubscriptionID: msg.SubscriptionID,
			})
		default:
			s.writeWSError(conn, &writeMu, "InvalidRequest", "unknown op "+msg.Op)
		}
	}
}

func (s *Server) writeWSFrame(conn *websocket.Conn, mu *sync.Mutex, frame any) {
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(frame)
}

func (s *Server) writeWSError(conn *websocket.Conn, mu *sync.Mutex, code, message string) {
	s.writeWSFrame(conn, mu, protocol.ErrorFrame{Event: protocol.EventError, Code: code, Error: message})
}

// gatewayIdentityKey gives an unauthenticated connection (local dev, no
// gateway token configured) a stable platform id distinct from any real
// token value so it never collides with one.
func gatewayIdentityKey(token string) string {
	if token == "" {
		return "anonymous"
	}
	return token
}
