package storerouter

// OpKind tags which pool an operation belongs on, mirroring the
// simple/complex pool split.
type OpKind int

const (
	// OpSimple is a single-row point read/write keyed by primary key:
	// session upsert, raid action insert, identity lookup by id.
	OpSimple OpKind = iota
	// OpComplex is a multi-row scan, join, vector similarity search, or
	// leaderboard aggregation: memory search, raid leaderboard, identity
	// merge across bindings.
	OpComplex
)

// Classify applies the simple/complex heuristic to route a named
// query to a pool without requiring every call site to know the split by
// heart. Callers that already know their pool should call RunSimple/
// RunComplex directly; Classify exists for generic call paths (e.g. the
// HTTP gateway dispatching by route) that only have a query name in hand.
func Classify(queryName string) OpKind {
	switch queryName {
	case "session.get", "session.upsert", "session.touch",
		"raid.action.insert", "identity.lookup",
		"raid.participant.upsert":
		return OpSimple
	case "memory.search", "memory.put_many", "raid.leaderboard",
		"raid.metrics", "identity.link", "identity.list_bindings":
		return OpComplex
	default:
		// Unknown query names default to the session pool: the smaller,
		// more conservatively-bounded pool is the safer default for work
		// whose cost profile hasn't been classified yet.
		return OpComplex
	}
}
