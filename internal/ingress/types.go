// Package ingress implements the Ingress Pipeline: the two ordered stages
// every inbound platform message passes through before it reaches a
// session. Stage 1 is security and normalization (blocklist, signature,
// rate limit, dedup, schema validation, content heuristics, canonical
// form); Stage 2 is classification and routing.
package ingress

import (
	"context"
	"time"
)

// InboundMessage is the canonical form every adapter's Stage-1 Normalize
// substep produces.
type InboundMessage struct {
	SourcePlatform string
	SourceUserKey  string
	RoomKey        string
	Text           string
	Attachments    []string
	RawRef         string
	ReceivedAt     time.Time
}

// Category is one arm of a Stage-2 Classification.
type Category string

const (
	CategoryCommunityChat      Category = "community-chat"
	CategoryRaidControl        Category = "raid-control"
	CategoryCryptoQuery        Category = "crypto-query"
	CategoryMeme               Category = "meme"
	CategorySupport            Category = "support"
	CategoryPersonalityTrigger Category = "personality-trigger"
	CategoryEmergency          Category = "emergency"
	CategoryUnknown            Category = "unknown"
)

// Classification is the Stage-2 output.
type Classification struct {
	Category         Category
	Confidence       float64
	SuspensionHints  []string
}

// Outcome names a Stage-1 substep's verdict. Substeps that pass emit
// OutcomeAccepted; a rejecting substep emits its own named outcome and the
// pipeline short-circuits.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeSchemaInvalid   Outcome = "schema_invalid"
	OutcomeSpamDetected    Outcome = "spam_detected"
)

// Adapter is the per-platform ingress adapter contract: Verify checks the
// platform's signature scheme over the raw request, ValidatePayload runs
// schema validation over the adapter-specific payload shape, Parse produces
// the canonical InboundMessage, Reply delivers a response back to the
// source platform.
type Adapter interface {
	Platform() string
	Verify(rawRequest []byte, headers map[string]string) error
	ValidatePayload(rawRequest []byte) []ValidationError
	Parse(rawRequest []byte, headers map[string]string) (InboundMessage, error)
	Reply(ctx context.Context, target string, text string, attachments []string) error
}
