package verify

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordAdapter verifies like/reply/follow-shaped objectives against a
// Discord message's reactions/thread, using the same discordgo session
// the ingress adapter already holds (grounded on goclaw's use of
// discordgo.Session as a long-lived injected client, never a
// per-request construction).
type DiscordAdapter struct {
	session *discordgo.Session
}

func NewDiscordAdapter(session *discordgo.Session) *DiscordAdapter {
	return &DiscordAdapter{session: session}
}

// target is "channelID/messageID"; participantRef is the Discord user id.
func (d *DiscordAdapter) VerifyAction(ctx context.Context, objectiveType ObjectiveType, target, participantRef string, submittedAt time.Time) (Result, error) {
	channelID, messageID, ok := strings.Cut(target, "/")
	if !ok {
		return Result{Outcome: Rejected}, nil
	}

	switch objectiveType {
	case ObjectiveLike:
		users, err := d.session.MessageReactions(channelID, messageID, "👍", 100, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return Result{Outcome: NotYet}, nil
		}
		for _, u := range users {
			if u.ID == participantRef {
				return Result{Outcome: Verified}, nil
			}
		}
		return Result{Outcome: NotYet}, nil
	case ObjectiveReply:
		msgs, err := d.session.ChannelMessages(channelID, 100, "", messageID, "", discordgo.WithContext(ctx))
		if err != nil {
			return Result{Outcome: NotYet}, nil
		}
		for _, m := range msgs {
			if m.Author != nil && m.Author.ID == participantRef && m.ReferencedMessage != nil && m.ReferencedMessage.ID == messageID {
				return Result{Outcome: Verified}, nil
			}
		}
		return Result{Outcome: NotYet}, nil
	default:
		return Result{Outcome: Rejected}, nil
	}
}
