package verify

import (
	"context"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
)

// TelegramAdapter verifies "follow"-shaped objectives (joining a channel)
// via getChatMember, and treats reply/like objectives as NotYet since
// Telegram's Bot API exposes no reaction/like read endpoint. Those NotYet
// results are not handed to the Registry's web-scrape fallback, which is
// used only for platforms with no registered adapter.
type TelegramAdapter struct {
	bot *telego.Bot
}

func NewTelegramAdapter(bot *telego.Bot) *TelegramAdapter {
	return &TelegramAdapter{bot: bot}
}

// target is the Telegram chat id; participantRef is the numeric user id.
func (t *TelegramAdapter) VerifyAction(ctx context.Context, objectiveType ObjectiveType, target, participantRef string, submittedAt time.Time) (Result, error) {
	if objectiveType != ObjectiveFollow {
		return Result{Outcome: NotYet}, nil
	}

	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return Result{Outcome: Rejected}, nil
	}
	userID, err := strconv.ParseInt(participantRef, 10, 64)
	if err != nil {
		return Result{Outcome: Rejected}, nil
	}

	member, err := t.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: userID,
	})
	if err != nil {
		return Result{Outcome: NotYet}, nil
	}

	switch member.MemberStatus() {
	case telego.MemberStatusLeft, telego.MemberStatusKicked:
		return Result{Outcome: NotYet}, nil
	default:
		return Result{Outcome: Verified}, nil
	}
}
