package ingress

import (
	"regexp"
	"strings"
)

// emergencyPhrases is a small hardcoded set; a match routes the message
// to the priority lane regardless of confidence.
var emergencyPhrases = []string{
	"server is down",
	"being rugged",
	"getting hacked",
	"wallet drained",
	"exploit in progress",
	"urgent: need mod",
}

type classifyRule struct {
	category Category
	pattern  *regexp.Regexp
	weight   float64
}

var classifyRules = []classifyRule{
	{CategoryRaidControl, regexp.MustCompile(`(?i)\b(join|raid|leaderboard|objective)\b`), 0.6},
	{CategoryCryptoQuery, regexp.MustCompile(`(?i)\b(price|market\s*cap|chart|ca\b|contract\s+address)\b`), 0.55},
	{CategoryMeme, regexp.MustCompile(`(?i)\b(lol|lmao|ngmi|wagmi|gm|kek)\b`), 0.4},
	{CategorySupport, regexp.MustCompile(`(?i)\b(help|stuck|error|doesn'?t\s+work|broken)\b`), 0.5},
	{CategoryPersonalityTrigger, regexp.MustCompile(`(?i)\b(who\s+are\s+you|tell\s+me\s+about\s+yourself)\b`), 0.45},
}

// Classify implements Stage 2: a regex/keyword scoring pass over the
// message text. Confidence is clamped to [0,1]; a non-empty message matching
// no rule classifies as community-chat with confidence 0.3, and only empty
// text classifies as unknown with zero confidence.
func Classify(text string) Classification {
	lower := strings.ToLower(text)
	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			return Classification{Category: CategoryEmergency, Confidence: 1.0}
		}
	}

	best := Classification{Category: CategoryUnknown, Confidence: 0}
	for _, rule := range classifyRules {
		if !rule.pattern.MatchString(text) {
			continue
		}
		if rule.weight > best.Confidence {
			best = Classification{Category: rule.category, Confidence: rule.weight}
		}
	}

	if best.Category == CategoryCommunityChat || (best.Category == CategoryUnknown && text != "") {
		return Classification{Category: CategoryCommunityChat, Confidence: 0.3}
	}
	return best
}
