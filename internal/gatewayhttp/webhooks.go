package gatewayhttp

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/memory"
	"github.com/raidcore/raidcore/internal/prompt"
	"github.com/raidcore/raidcore/internal/session"
)

// roomSessions caches the most recent active conversation session id per
// (platform, room) key so a burst of inbound webhooks for the same room
// reuses one session instead of creating one per message. Entries are
// replaced, never evicted here — the Session Manager's own cleanup sweep
// is the source of truth for liveness; a stale cache hit just means one
// extra Get call returns a terminal-state session, handled below by
// falling back to Create.
type roomSessions struct {
	mu   sync.Mutex
	byID map[string]uuid.UUID
}

func newRoomSessions() *roomSessions { return &roomSessions{byID: make(map[string]uuid.UUID)} }

func (rs *roomSessions) get(key string) (uuid.UUID, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	id, ok := rs.byID[key]
	return id, ok
}

func (rs *roomSessions) set(key string, id uuid.UUID) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.byID[key] = id
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	adapter, ok := s.adapters[platform]
	if !ok {
		writeError(w, http.StatusNotFound, "UnknownPlatform", "no adapter registered for platform "+platform)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "could not read request body")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	sourceKey := sourceIP(r)
	result := s.ingress.Ingest(r.Context(), adapter, sourceKey, body, headers)

	if result.Outcome == ingress.OutcomeDuplicate {
		w.WriteHeader(http.StatusOK) // already processed, ack so the platform stops retrying
		return
	}
	if result.Outcome != ingress.OutcomeAccepted {
		writeAPIError(w, result.Err)
		return
	}

	msg := result.Message
	roomKey := platform + ":" + msg.RoomKey
	sess, err := s.resolveRoomSession(r.Context(), platform, roomKey, msg)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if result.Classification.Category == ingress.CategoryRaidControl {
		reply := s.routeRaidControl(r.Context(), msg)
		if err := adapter.Reply(r.Context(), msg.RoomKey, reply, nil); err != nil {
			s.logger.Warn("gatewayhttp.webhook_reply_failed", "platform", platform, "error", err)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	recent, err := s.memory.GetRecent(r.Context(), sess.RoomID, 20, &memory.Filter{Kind: memory.KindConversationTurn})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	resp, err := s.dispatch.Dispatch(
		r.Context(),
		prompt.SessionView{ID: sess.ID, AgentID: sess.AgentID, Kind: string(sess.Kind), RoomID: sess.RoomID, CreatedAt: sess.CreatedAt},
		msg.Text,
		result.Classification,
		toMemoryTurns(recent),
		nil,
		prompt.Identity{},
		prompt.PersonalityConfig{},
	)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if err := adapter.Reply(r.Context(), msg.RoomKey, resp.Text, nil); err != nil {
		s.logger.Warn("gatewayhttp.webhook_reply_failed", "platform", platform, "error", err)
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) resolveRoomSession(ctx context.Context, platform, roomKey string, msg ingress.InboundMessage) (session.Session, error) {
	if id, ok := s.rooms.get(roomKey); ok {
		if sess, err := s.sessions.Get(ctx, id); err == nil && sess.State == session.StateActive {
			return sess, nil
		}
	}

	sess, err := s.sessions.Create(ctx, session.CreateParams{
		AgentID: platform,
		UserID:  msg.SourceUserKey,
		RoomID:  roomKey,
		Kind:    session.KindCommunity,
	})
	if err != nil {
		return session.Session{}, err
	}
	s.rooms.set(roomKey, sess.ID)
	return sess, nil
}

func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
