package prompt

import (
	"math/rand"
	"strings"
)

// adjacentTypoPairs are swapped in place when a typo is injected, a small
// fixed set so injected typos stay plausible rather than scrambling text.
var adjacentTypoPairs = [][2]byte{
	{'t', 'h'}, {'e', 'r'}, {'i', 'o'}, {'a', 's'}, {'n', 'm'},
}

var contradictionClauses = []string{
	"though I could be wrong about that",
	"actually, let me reconsider",
	"or maybe not, hard to say",
}

// Humanize applies controlled typo and contradiction injection to text at
// the configured rates. Each is an independent per-response coin flip, not
// a per-word rate, so a response is humanized as a whole or not at all —
// partial corruption mid-sentence reads as a bug, not a human.
func Humanize(text string, cfg HumanizationConfig, rng *rand.Rand) string {
	if text == "" {
		return text
	}
	out := text
	if cfg.TypoRate > 0 && rng.Float64() < cfg.TypoRate {
		out = injectTypo(out, rng)
	}
	if cfg.ContradictionRate > 0 && rng.Float64() < cfg.ContradictionRate {
		out = appendContradiction(out, rng)
	}
	return out
}

// injectTypo swaps the first occurrence of one adjacent-letter pair,
// leaving the rest of the text untouched. It starts from a randomly chosen
// pair and tries the others in turn until one occurs in the text; text
// containing none of the pairs is returned unchanged.
func injectTypo(text string, rng *rand.Rand) string {
	start := rng.Intn(len(adjacentTypoPairs))
	b := []byte(text)
	for k := range adjacentTypoPairs {
		pair := adjacentTypoPairs[(start+k)%len(adjacentTypoPairs)]
		for i := 0; i < len(b)-1; i++ {
			if b[i] == pair[0] && b[i+1] == pair[1] {
				b[i], b[i+1] = b[i+1], b[i]
				return string(b)
			}
		}
	}
	return text
}

// appendContradiction tacks on a short hedging clause, the cheapest
// believable signal of a less-than-certain human response.
func appendContradiction(text string, rng *rand.Rand) string {
	clause := contradictionClauses[rng.Intn(len(contradictionClauses))]
	trimmed := strings.TrimRight(text, ". ")
	return trimmed + ", " + clause + "."
}
