// Package prompt implements the Prompt Composer and its thin Dispatcher:
// Composer assembles a structured model-engine request from session
// state, memory, identity, and personality; it never calls the engine.
// Dispatcher performs that call, applies humanization post-processing,
// persists the turn pair, and publishes on the bus.
//
// Grounded on goclaw's internal/agent/loop_history.go buildMessages (the
// system-prompt-then-summary-then-history-then-current-message assembly
// order) and internal/agent/loop.go's Think/Act/Observe call shape,
// adapted from a tool-calling agent loop to this system's
// compose-then-dispatch split.
package prompt

import (
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/identity"
	"github.com/raidcore/raidcore/internal/ingress"
)

// Turn is one prior message in the composed history, already sanitized
// and ordered oldest-first.
type Turn struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Params are the model-engine sampling knobs.
type Params struct {
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Hints carry classification and (optional) inferred emotional state
// through to the model engine without the engine needing to re-derive
// them from raw text.
type Hints struct {
	Classification ingress.Category
	EmotionalState string
}

// Request is the structured object the Composer returns: everything the
// model engine needs and nothing it must fetch itself.
type Request struct {
	SystemPrompt    string
	History         []Turn
	UserInput       string
	CapabilityFlags map[string]bool
	Params          Params
	Hints           Hints
}

// Response is what a ModelEngine returns for a completed Request.
type Response struct {
	Text         string
	TokensUsed   int
	FinishReason string // "stop", "length", "error"
}

// Identity is the subset of identity.Resolver state the Composer needs:
// the resolved internal id plus its current platform bindings.
type Identity struct {
	InternalID uuid.UUID
	Bindings   []identity.Binding
}

// PersonalityConfig shapes the system prompt and the Dispatcher's
// post-processing. One PersonalityConfig is loaded per agent_id.
type PersonalityConfig struct {
	AgentID             string
	DisplayName         string
	Tone                string   // short free-text style guide, folded into the system prompt
	SystemPromptPreamble string  // persona-specific text prepended ahead of the generated sections
	AllowedCapabilities []string
	Humanization        HumanizationConfig
}

// HumanizationConfig controls the Dispatcher's post-processing rates.
// Both are probabilities in [0,1] applied independently per response.
type HumanizationConfig struct {
	TypoRate          float64
	ContradictionRate float64
}

// SessionView is the subset of session.Session the Composer reads. It is
// a narrow view rather than the full session package type so this
// package has no import-cycle dependency on internal/session.
type SessionView struct {
	ID        uuid.UUID
	AgentID   string
	Kind      string
	RoomID    string
	CreatedAt time.Time
}

// MemoryTurn is one recalled conversation turn the Composer folds into
// History ahead of the live user_input.
type MemoryTurn struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// SemanticMatch is one semantic-memory search hit surfaced to the
// Composer as extra system-prompt context (facts, summaries).
type SemanticMatch struct {
	Text       string
	Similarity float32
}
