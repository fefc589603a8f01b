package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/storerouter"
)

// Backend picks the SQL dialect and embedding encoding a Store targets.
// Postgres pushes the cosine search into the query via pgvector;
// standalone SQLite has no vector type, so Store brute-forces the cosine
// scan in Go over the JSON-encoded embeddings it stores in standalone
// (sqlite) mode.
type Backend int

const (
	BackendPostgres Backend = iota
	BackendSQLite
)

// Store implements put/get_recent/search/put_many atop the Router.
type Store struct {
	router  *storerouter.Router
	backend Backend
	embed   Embedder
	logger  *slog.Logger
}

func New(router *storerouter.Router, backend Backend, embed Embedder, logger *slog.Logger) *Store {
	if embed == nil {
		embed = NoopEmbedder{}
	}
	return &Store{router: router, backend: backend, embed: embed, logger: logger}
}

// Put writes item and returns its id. If Embedding is absent, BodyText is
// non-empty, and Kind is in the embed-on-write allow-list, it computes an
// embedding synchronously; embed failure downgrades to "stored without
// vector" plus a warning log, and never fails the call.
func (s *Store) Put(ctx context.Context, item Item) (uuid.UUID, error) {
	if item.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, err
		}
		item.ID = id
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if len(item.Embedding) == 0 && item.BodyText != "" && embedOnWrite[item.Kind] {
		vec, err := s.embed.Embed(ctx, item.BodyText)
		if err != nil {
			s.logger.Warn("memory.put: embedding failed, storing without vector",
				"item_id", item.ID, "kind", item.Kind, "error", err)
		} else {
			item.Embedding = vec
		}
	}

	_, err := storerouter.RunSimple(ctx, s.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		return struct{}{}, s.insertOne(ctx, q, item)
	})
	return item.ID, err
}

// PutMany inserts items with one Exec per item, all inside a single
// RunSimple operation that holds one transaction-pool slot. The inserts
// do not run in a database transaction: the Queryer is pool-backed, and
// rows inserted before a failing item stay written. The returned error
// names the index of the failing item.
func (s *Store) PutMany(ctx context.Context, items []Item) error {
	_, err := storerouter.RunSimple(ctx, s.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		for i := range items {
			if items[i].ID == uuid.Nil {
				id, err := uuid.NewV7()
				if err != nil {
					return struct{}{}, err
				}
				items[i].ID = id
			}
			if items[i].CreatedAt.IsZero() {
				items[i].CreatedAt = time.Now().UTC()
			}
			if err := s.insertOne(ctx, q, items[i]); err != nil {
				return struct{}{}, fmt.Errorf("memory.put_many: item %d: %w", i, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) insertOne(ctx context.Context, q storerouter.Queryer, item Item) error {
	fields, err := json.Marshal(item.BodyFields)
	if err != nil {
		return err
	}

	switch s.backend {
	case BackendPostgres:
		var embArg any
		if len(item.Embedding) > 0 {
			embArg = toPGVector(item.Embedding)
		}
		return q.Exec(ctx, `
			INSERT INTO memories (id, agent_id, room_id, entity_id, kind, body_text, body_fields, embedding, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			item.ID, item.AgentID, item.RoomID, item.EntityID, string(item.Kind),
			item.BodyText, fields, embArg, item.CreatedAt)
	default: // BackendSQLite
		var embArg any
		if len(item.Embedding) > 0 {
			raw, err := json.Marshal(item.Embedding)
			if err != nil {
				return err
			}
			embArg = string(raw)
		}
		return q.Exec(ctx, `
			INSERT INTO memories (id, agent_id, room_id, entity_id, kind, body_text, body_fields, embedding, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			item.ID.String(), item.AgentID, item.RoomID, item.EntityID, string(item.Kind),
			item.BodyText, string(fields), embArg, item.CreatedAt.Format(time.RFC3339Nano))
	}
}

// GetRecent returns up to limit items for room, newest-first, via the
// transaction pool. limit is clamped to 1000.
func (s *Store) GetRecent(ctx context.Context, roomID string, limit int, filter *Filter) ([]Item, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	return storerouter.RunSimple(ctx, s.router, true, func(ctx context.Context, q storerouter.Queryer) ([]Item, error) {
		query := `SELECT id, agent_id, room_id, entity_id, kind, body_text, body_fields, embedding, created_at
			FROM memories WHERE room_id = ` + s.ph(1)
		args := []any{roomID}
		if filter != nil && filter.Kind != "" {
			args = append(args, string(filter.Kind))
			query += ` AND kind = ` + s.ph(len(args))
		}
		if filter != nil && filter.EntityID != "" {
			args = append(args, filter.EntityID)
			query += ` AND entity_id = ` + s.ph(len(args))
		}
		if filter != nil && !filter.Before.IsZero() {
			args = append(args, s.timeArg(filter.Before))
			query += ` AND created_at < ` + s.ph(len(args))
		}
		query += ` ORDER BY created_at DESC LIMIT ` + s.ph(len(args)+1)
		args = append(args, limit)

		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Item
		for rows.Next() {
			item, err := s.scanItem(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, rows.Err()
	})
}

// Search returns the top-K items by cosine similarity to queryVec, with
// similarity >= minSimilarity, via the session pool. Ties break by
// created_at descending.
func (s *Store) Search(ctx context.Context, roomID string, queryVec []float32, limit int, minSimilarity float32) ([]Scored, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	switch s.backend {
	case BackendPostgres:
		return storerouter.RunComplex(ctx, s.router, true, func(ctx context.Context, q storerouter.Queryer) ([]Scored, error) {
			rows, err := q.Query(ctx, `
				SELECT id, agent_id, room_id, entity_id, kind, body_text, body_fields, embedding, created_at,
				       1 - (embedding <=> $1) AS similarity
				FROM memories
				WHERE room_id = $2 AND embedding IS NOT NULL
				ORDER BY embedding <=> $1 ASC, created_at DESC
				LIMIT $3`,
				toPGVector(queryVec), roomID, limit)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			var out []Scored
			for rows.Next() {
				var item Item
				var embedding pgvectorScanStub
				var sim float32
				if err := rows.Scan(&item.ID, &item.AgentID, &item.RoomID, &item.EntityID, &item.Kind,
					&item.BodyText, &item.BodyFields, &embedding, &item.CreatedAt, &sim); err != nil {
					return nil, err
				}
				if sim < minSimilarity {
					continue
				}
				out = append(out, Scored{Item: item, Similarity: sim})
			}
			return out, rows.Err()
		})
	default: // BackendSQLite: brute-force cosine in Go.
		return storerouter.RunComplex(ctx, s.router, true, func(ctx context.Context, q storerouter.Queryer) ([]Scored, error) {
			rows, err := q.Query(ctx, `SELECT id, agent_id, room_id, entity_id, kind, body_text, body_fields, embedding, created_at
				FROM memories WHERE room_id = ? AND embedding IS NOT NULL`, roomID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			var candidates []Scored
			for rows.Next() {
				item, err := s.scanItem(rows)
				if err != nil {
					return nil, err
				}
				sim := cosineSimilarity(queryVec, item.Embedding)
				if sim >= minSimilarity {
					candidates = append(candidates, Scored{Item: item, Similarity: sim})
				}
			}
			if err := rows.Err(); err != nil {
				return nil, err
			}

			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].Similarity != candidates[j].Similarity {
					return candidates[i].Similarity > candidates[j].Similarity
				}
				return candidates[i].Item.CreatedAt.After(candidates[j].Item.CreatedAt)
			})
			if len(candidates) > limit {
				candidates = candidates[:limit]
			}
			return candidates, nil
		})
	}
}

func (s *Store) ph(n int) string {
	if s.backend == BackendPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// timeArg encodes t for the current backend's created_at column: a
// native time.Time for Postgres, an RFC3339Nano string for sqlite,
// matching insertOne's own per-backend encoding of CreatedAt.
func (s *Store) timeArg(t time.Time) any {
	if s.backend == BackendPostgres {
		return t
	}
	return t.Format(time.RFC3339Nano)
}

// pgvectorScanStub discards the raw embedding column in the search path,
// since similarity is already computed by the query; avoids paying for a
// second decode of the vector on every search row.
type pgvectorScanStub struct{}

func (*pgvectorScanStub) Scan(src any) error { return nil }

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
