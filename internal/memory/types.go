// Package memory implements the Memory Store: put/get_recent/search/
// put_many over room-scoped memory items, with embed-on-write and
// graceful degradation when no embedding provider is configured.
//
// Grounded on other_examples/a876983c_ashita-ai-akashi's pgvector decision
// store and its swappable embedding.Provider, and on
// internal/storerouter for the pool split (get_recent/put/put_many on the
// transaction pool, search on the session pool).
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags what an Item represents. The embed-on-write allow-list is
// keyed by Kind.
type Kind string

const (
	KindConversationTurn Kind = "conversation_turn"
	KindSummary          Kind = "summary"
	KindFact             Kind = "fact"
	KindRaidEvent        Kind = "raid_event"
)

// Item is a single memory entry. Embedding is nil until computed (or
// forever, for kinds outside the embed-on-write allow-list or when no
// embedder is configured).
type Item struct {
	ID         uuid.UUID
	AgentID    string
	RoomID     string
	EntityID   string
	Kind       Kind
	BodyText   string
	BodyFields map[string]any
	Embedding  []float32
	CreatedAt  time.Time
}

// Filter narrows get_recent beyond (room_id, limit). Before, when set,
// restricts results to items strictly older than it, giving the HTTP
// surface's cursor pagination something to page on.
type Filter struct {
	Kind     Kind
	EntityID string
	Before   time.Time
}

// Scored pairs a search result with its cosine similarity.
type Scored struct {
	Item       Item
	Similarity float32
}

// embedOnWrite is the allow-list of memory kinds: only these kinds
// get a synchronous embedding computed on put() when one isn't supplied.
var embedOnWrite = map[Kind]bool{
	KindConversationTurn: true,
	KindSummary:          true,
	KindFact:             true,
}
