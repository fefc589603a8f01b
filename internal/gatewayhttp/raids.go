package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/raid"
)

type createRaidRequest struct {
	Title           string           `json:"title"`
	TargetRef       string           `json:"target_ref"`
	Objectives      []raid.Objective `json:"objectives"`
	MaxParticipants int              `json:"max_participants,omitempty"`
	DurationMS      int64            `json:"duration_ms,omitempty"`
	AutoStart       bool             `json:"auto_start,omitempty"`
}

func (s *Server) handleCreateRaid(w http.ResponseWriter, r *http.Request) {
	var body createRaidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	state, err := s.raids.Create(r.Context(), raid.CreateParams{
		Title:           body.Title,
		TargetRef:       body.TargetRef,
		Objectives:      body.Objectives,
		MaxParticipants: body.MaxParticipants,
		Duration:        time.Duration(body.DurationMS) * time.Millisecond,
		AutoStart:       body.AutoStart,
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) raidID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue("id"))
}

type joinRaidRequest struct {
	ParticipantID string `json:"participant_id"`
	PlatformID    string `json:"platform_id"`
	DisplayName   string `json:"display_name,omitempty"`
	SecondaryID   string `json:"secondary_id,omitempty"`
}

func (s *Server) handleJoinRaid(w http.ResponseWriter, r *http.Request) {
	id, err := s.raidID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	var body joinRaidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	participant, err := s.raids.Join(r.Context(), id, raid.Participant{
		ParticipantID: body.ParticipantID,
		PlatformID:    body.PlatformID,
		DisplayName:   body.DisplayName,
		SecondaryID:   body.SecondaryID,
		JoinedAt:      time.Now().UTC(),
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

type postActionRequest struct {
	ActionID      string `json:"action_id"`
	ParticipantID string `json:"participant_id"`
	ObjectiveType string `json:"objective_type"`
	Target        string `json:"target"`
	Proof         []byte `json:"proof,omitempty"`
}

func (s *Server) handlePostAction(w http.ResponseWriter, r *http.Request) {
	id, err := s.raidID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	var body postActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	action, err := s.raids.RecordAction(r.Context(), id, raid.Action{
		ActionID:      body.ActionID,
		ParticipantID: body.ParticipantID,
		ObjectiveType: raid.ObjectiveType(body.ObjectiveType),
		Target:        body.Target,
		SubmittedAt:   time.Now().UTC(),
		Proof:         body.Proof,
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, action)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := s.raidID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	board, err := s.raids.Leaderboard(id, limit)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleRaidMetrics(w http.ResponseWriter, r *http.Request) {
	id, err := s.raidID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	metrics, err := s.raids.Metrics(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

type completeRaidRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCompleteRaid(w http.ResponseWriter, r *http.Request) {
	id, err := s.raidID(r)
	if err != nil {
		writeAPIError(w, apierr.ErrInvalidRequest.Wrap(err))
		return
	}
	var body completeRaidRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.raids.Complete(r.Context(), id, body.Reason); err != nil {
		writeAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
