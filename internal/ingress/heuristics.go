package ingress

import "regexp"

// spamPatterns are a small set of regex-driven content heuristics. A match
// is accepted but not forwarded — severity low, not a Stage-1 rejection.
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)free\s+nft\s+airdrop`),
	regexp.MustCompile(`(?i)dm\s+me\s+for\s+(guaranteed|instant)\s+(profit|returns)`),
	regexp.MustCompile(`(?i)\bclick\s+here\b.{0,20}\bclaim\b`),
	regexp.MustCompile(`(?i)double\s+your\s+(crypto|btc|eth)\s+in\s+\d+\s+(hours?|days?)`),
	regexp.MustCompile(`https?://\S+\.(?:ru|top|click)\b`),
}

// MatchesSpamHeuristic reports whether text matches any content heuristic.
func MatchesSpamHeuristic(text string) bool {
	for _, p := range spamPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
