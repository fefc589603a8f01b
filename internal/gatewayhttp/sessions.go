package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/memory"
	"github.com/raidcore/raidcore/internal/prompt"
	"github.com/raidcore/raidcore/internal/session"
)

type createSessionRequest struct {
	AgentID       string            `json:"agent_id"`
	UserID        string            `json:"user_id,omitempty"`
	RoomID        string            `json:"room_id"`
	Kind          string            `json:"kind,omitempty"`
	TimeoutMS     int64             `json:"timeout_ms,omitempty"`
	RenewalPolicy string            `json:"renewal_policy,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}

	sess, err := s.sessions.Create(r.Context(), session.CreateParams{
		AgentID:       body.AgentID,
		UserID:        body.UserID,
		RoomID:        body.RoomID,
		Kind:          session.Kind(body.Kind),
		TimeoutMS:     body.TimeoutMS,
		RenewalPolicy: session.RenewalPolicy(body.RenewalPolicy),
		Metadata:      body.Metadata,
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) sessionID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	if err := s.sessions.End(r.Context(), id, "deleted_via_api"); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenewSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	expiresAt, err := s.sessions.Renew(r.Context(), id, 0)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expires_at": expiresAt})
}

func (s *Server) handleHeartbeatSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	if err := s.sessions.Heartbeat(r.Context(), id); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postMessageRequest struct {
	Content  string         `json:"content"`
	Type     string         `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// handlePostMessage runs a message already admitted past the ingress
// pipeline (inbound webhooks go through Pipeline.Ingest instead): content
// classified as raid control goes to routeRaidControl, everything else
// straight through the Prompt Composer/Dispatcher, since an authenticated
// first-party caller of this endpoint bypasses Stage 1's adapter-facing
// checks by construction.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	var body postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if sess.State != session.StateActive {
		writeAPIError(w, apierr.ErrSessionNotActive)
		return
	}
	if err := s.sessions.UpdateActivity(r.Context(), id, 1); err != nil {
		writeAPIError(w, err)
		return
	}

	classification := ingress.Classify(body.Content)

	if classification.Category == ingress.CategoryRaidControl {
		reply := s.routeRaidControl(r.Context(), ingress.InboundMessage{
			SourceUserKey: sess.UserID,
			RoomKey:       sess.RoomID,
			Text:          body.Content,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"text":           reply,
			"classification": classification.Category,
		})
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
		body.Content,
		classification,
		toMemoryTurns(recent),
		nil,
		prompt.Identity{},
		prompt.PersonalityConfig{},
	)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":          resp.Text,
		"tokens_used":   resp.TokensUsed,
		"finish_reason": resp.FinishReason,
		"classification": classification.Category,
	})
}

func toMemoryTurns(items []memory.Item) []prompt.MemoryTurn {
	turns := make([]prompt.MemoryTurn, 0, len(items))
	for _, item := range items {
		role, _ := item.BodyFields["role"].(string)
		if role == "" {
			role = "user"
		}
		turns = append(turns, prompt.MemoryTurn{Role: role, Content: item.BodyText, CreatedAt: item.CreatedAt})
	}
	return turns
}

// handleGetMessages implements cursor pagination over stored turns: the
// cursor is an RFC3339Nano timestamp of the oldest turn already seen by
// the caller, and results page strictly older than it.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessionID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	filter := &memory.Filter{Kind: memory.KindConversationTurn}
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
			return
		}
		filter.Before = before
	}

	items, err := s.memory.GetRecent(r.Context(), sess.RoomID, limit, filter)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	var nextCursor string
	if len(items) > 0 {
		nextCursor = items[len(items)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"cursor": nextCursor,
	})
}
