package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raidcore/raidcore/internal/ingress"
)

// Composer is a pure function of its inputs: same arguments always
// produce the same Request, and it never performs I/O.
type Composer struct {
	defaultParams Params
	historyLimit  int
}

func NewComposer(defaults Params, historyLimit int) *Composer {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Composer{defaultParams: defaults, historyLimit: historyLimit}
}

// Compose assembles the structured request object. recentMemory is
// newest-first (as returned by memory.Store.GetRecent) and is reversed
// here to the oldest-first order a model-engine history expects.
func (c *Composer) Compose(
	session SessionView,
	incomingText string,
	classification ingress.Classification,
	recentMemory []MemoryTurn,
	semanticMemory []SemanticMatch,
	ident Identity,
	personality PersonalityConfig,
) Request {
	history := oldestFirst(recentMemory, c.historyLimit)

	return Request{
		SystemPrompt:    buildSystemPrompt(session, semanticMemory, ident, personality),
		History:         history,
		UserInput:       incomingText,
		CapabilityFlags: capabilityFlags(personality),
		Params:          c.defaultParams,
		Hints: Hints{
			Classification: classification.Category,
			EmotionalState: emotionalStateHint(classification),
		},
	}
}

// oldestFirst trims recent to the last limit turns and reverses it to
// chronological order, mirroring goclaw's limitHistoryTurns step.
func oldestFirst(recent []MemoryTurn, limit int) []Turn {
	if len(recent) > limit {
		recent = recent[:limit]
	}
	out := make([]Turn, len(recent))
	for i, m := range recent {
		out[len(recent)-1-i] = Turn{Role: m.Role, Content: m.Content}
	}
	return out
}

// buildSystemPrompt assembles the persona preamble, identity summary, and
// any semantic-memory facts into one system message, matching the
// section-by-section style of goclaw's BuildSystemPrompt.
func buildSystemPrompt(session SessionView, semantic []SemanticMatch, ident Identity, personality PersonalityConfig) string {
	var b strings.Builder

	if personality.SystemPromptPreamble != "" {
		b.WriteString(personality.SystemPromptPreamble)
		b.WriteString("\n\n")
	}
	if personality.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n\n", personality.Tone)
	}

	fmt.Fprintf(&b, "Session: kind=%s room=%s\n", session.Kind, session.RoomID)
	if len(ident.Bindings) > 0 {
		b.WriteString("Known identity bindings:\n")
		for _, binding := range ident.Bindings {
			fmt.Fprintf(&b, "- %s (%s)\n", binding.Platform, verifiedLabel(binding.Verified))
		}
	}

	if len(personality.AllowedCapabilities) > 0 {
		caps := append([]string(nil), personality.AllowedCapabilities...)
		sort.Strings(caps)
		fmt.Fprintf(&b, "\nAvailable capabilities: %s\n", strings.Join(caps, ", "))
	}

	if len(semantic) > 0 {
		b.WriteString("\nRelevant recalled context:\n")
		for _, m := range semantic {
			fmt.Fprintf(&b, "- (%.2f) %s\n", m.Similarity, m.Text)
		}
	}

	return b.String()
}

func verifiedLabel(verified bool) string {
	if verified {
		return "verified"
	}
	return "unverified"
}

// capabilityFlags turns the persona's allow-list into the flag map the
// model engine sees.
func capabilityFlags(personality PersonalityConfig) map[string]bool {
	flags := make(map[string]bool, len(personality.AllowedCapabilities))
	for _, cap := range personality.AllowedCapabilities {
		flags[cap] = true
	}
	return flags
}

// emotionalStateHint is a coarse heuristic: only the emergency category
// currently carries a confident emotional-state signal.
func emotionalStateHint(classification ingress.Classification) string {
	if classification.Category == ingress.CategoryEmergency {
		return "distressed"
	}
	return ""
}
