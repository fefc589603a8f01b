package gatewayhttp

import (
	"context"
	"fmt"
	"strings"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/ingress"
	"github.com/raidcore/raidcore/internal/raid"
)

// routeRaidControl hands a raid-control classified message to the Raid
// Coordinator instead of the Prompt Dispatcher's model engine. Chat text is
// intentionally kept to a handful of keywords; anything that needs a
// specific raid id goes through the dedicated /raids* REST endpoints
// instead of free text.
func (s *Server) routeRaidControl(ctx context.Context, msg ingress.InboundMessage) string {
	active := s.raids.ActiveRaids()
	if len(active) == 0 {
		return "No raid is active right now."
	}
	if len(active) > 1 {
		return "More than one raid is active; use the raid API to join a specific one."
	}
	id := active[0]

	text := strings.ToLower(msg.Text)
	switch {
	case strings.Contains(text, "join"):
		_, err := s.raids.Join(ctx, id, raid.Participant{
			ParticipantID: msg.SourceUserKey,
			PlatformID:    msg.SourceUserKey,
		})
		switch {
		case err == nil:
			return "You're in the raid. Say \"leaderboard\" for standings."
		case apierr.Is(err, apierr.ErrAlreadyJoined):
			return "You're already in this raid."
		case apierr.Is(err, apierr.ErrRaidFull):
			return "This raid is full."
		default:
			return "Could not join the raid right now."
		}

	case strings.Contains(text, "leaderboard"):
		board, err := s.raids.Leaderboard(id, 5)
		if err != nil || len(board) == 0 {
			return "No leaderboard entries yet."
		}
		return fmt.Sprintf("Top raider: %s (%d pts)", board[0].ParticipantID, board[0].PointsEarned)

	default:
		metrics, err := s.raids.Metrics(id)
		if err != nil {
			return "A raid is in progress."
		}
		return fmt.Sprintf("Raid is %s, %s remaining, %.0f%% complete.",
			metrics.Status, metrics.TimeRemaining.Round(1e9), metrics.CompletionRatio*100)
	}
}
