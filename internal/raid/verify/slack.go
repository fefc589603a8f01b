package verify

import (
	"context"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// SlackAdapter verifies like-shaped objectives via message reactions.
type SlackAdapter struct {
	client *slack.Client
}

func NewSlackAdapter(client *slack.Client) *SlackAdapter {
	return &SlackAdapter{client: client}
}

// target is "channelID/timestamp".
func (s *SlackAdapter) VerifyAction(ctx context.Context, objectiveType ObjectiveType, target, participantRef string, submittedAt time.Time) (Result, error) {
	if objectiveType != ObjectiveLike {
		return Result{Outcome: NotYet}, nil
	}
	channel, ts, ok := strings.Cut(target, "/")
	if !ok {
		return Result{Outcome: Rejected}, nil
	}

	reactions, err := s.client.GetReactionsContext(ctx, slack.ItemRef{Channel: channel, Timestamp: ts}, slack.NewGetReactionsParameters())
	if err != nil {
		return Result{Outcome: NotYet}, nil
	}
	for _, r := range reactions {
		for _, u := range r.Users {
			if u == participantRef {
				return Result{Outcome: Verified}, nil
			}
		}
	}
	return Result{Outcome: NotYet}, nil
}
