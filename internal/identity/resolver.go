package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// Backend picks placeholder style, matching internal/memory.Backend's
// split since both packages sit atop the same Router/Queryer pair.
type Backend int

const (
	BackendPostgres Backend = iota
	BackendSQLite
)

type Resolver struct {
	router  *storerouter.Router
	backend Backend
	logger  *slog.Logger
}

func New(router *storerouter.Router, backend Backend, logger *slog.Logger) *Resolver {
	return &Resolver{router: router, backend: backend, logger: logger}
}

func (r *Resolver) ph(n int) string {
	if r.backend == BackendPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Resolve is idempotent: it returns the existing identity bound to
// (platform, platformID), following a merge chain if the identity was
// since absorbed into another, or allocates a new identity and binding.
// verified marks whether this binding carries platform-verified trust
// needed so link() has a signal to detect ConflictingVerification against.
func (r *Resolver) Resolve(ctx context.Context, platform, platformID string, verified bool) (uuid.UUID, error) {
	return storerouter.RunSimple(ctx, r.router, false, func(ctx context.Context, q storerouter.Queryer) (uuid.UUID, error) {
		row := q.QueryRow(ctx, `SELECT identity_id FROM identity_bindings WHERE platform = `+r.ph(1)+` AND platform_id = `+r.ph(2),
			platform, platformID)

		var rawID any
		var existing uuid.UUID
		var found bool
		if err := r.scanUUID(row, &rawID); err == nil {
			existing, err = r.parseUUID(rawID)
			if err != nil {
				return uuid.Nil, err
			}
			found = true
		}

		if found {
			resolved, err := r.followMergeChain(ctx, q, existing)
			if err != nil {
				return uuid.Nil, err
			}
			if verified {
				if err := r.markVerified(ctx, q, platform, platformID); err != nil {
					return uuid.Nil, err
				}
			}
			return resolved, nil
		}

		newID, err := uuid.NewV7()
		if err != nil {
			return uuid.Nil, err
		}
		now := r.now()
		if err := q.Exec(ctx, `INSERT INTO identities (id, created_at) VALUES (`+r.ph(1)+`,`+r.ph(2)+`)`,
			r.idArg(newID), now); err != nil {
			return uuid.Nil, err
		}
		if err := q.Exec(ctx, `INSERT INTO identity_bindings (identity_id, platform, platform_id, verified, linked_at)
			VALUES (`+r.ph(1)+`,`+r.ph(2)+`,`+r.ph(3)+`,`+r.ph(4)+`,`+r.ph(5)+`)`,
			r.idArg(newID), platform, platformID, verified, now); err != nil {
			return uuid.Nil, err
		}
		return newID, nil
	})
}

// Link merges two identity sets, picking the lexicographically smaller
// id as survivor. All bindings are rewritten to point at it by a single
// UPDATE statement; the loser's merged_into is then set by a second
// statement, and the two statements do not share a transaction. Fails with
// ConflictingVerification if both sides hold verified bindings for the
// same platform with different platform ids.
func (r *Resolver) Link(ctx context.Context, a, b uuid.UUID) error {
	_, err := storerouter.RunComplex(ctx, r.router, false, func(ctx context.Context, q storerouter.Queryer) (struct{}, error) {
		resolvedA, err := r.followMergeChain(ctx, q, a)
		if err != nil {
			return struct{}{}, err
		}
		resolvedB, err := r.followMergeChain(ctx, q, b)
		if err != nil {
			return struct{}{}, err
		}
		if resolvedA == resolvedB {
			return struct{}{}, nil // already merged — idempotent no-op
		}

		bindingsA, err := r.listBindings(ctx, q, resolvedA)
		if err != nil {
			return struct{}{}, err
		}
		bindingsB, err := r.listBindings(ctx, q, resolvedB)
		if err != nil {
			return struct{}{}, err
		}

		byPlatformA := make(map[string]Binding, len(bindingsA))
		for _, bd := range bindingsA {
			byPlatformA[bd.Platform] = bd
		}
		for _, bd := range bindingsB {
			other, ok := byPlatformA[bd.Platform]
			if ok && bd.Verified && other.Verified && bd.PlatformID != other.PlatformID {
				return struct{}{}, apierr.ErrConflictingVerification
			}
		}

		survivor, absorbed := resolvedA, resolvedB
		if survivor.String() > absorbed.String() {
			survivor, absorbed = absorbed, survivor
		}

		if err := q.Exec(ctx, `UPDATE identity_bindings SET identity_id = `+r.ph(1)+` WHERE identity_id = `+r.ph(2),
			r.idArg(survivor), r.idArg(absorbed)); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, q.Exec(ctx, `UPDATE identities SET merged_into = `+r.ph(1)+` WHERE id = `+r.ph(2),
			r.idArg(survivor), r.idArg(absorbed))
	})
	return err
}

// ListBindings returns every binding currently attached to internalID,
// following the merge chain first.
func (r *Resolver) ListBindings(ctx context.Context, internalID uuid.UUID) ([]Binding, error) {
	return storerouter.RunComplex(ctx, r.router, true, func(ctx context.Context, q storerouter.Queryer) ([]Binding, error) {
		resolved, err := r.followMergeChain(ctx, q, internalID)
		if err != nil {
			return nil, err
		}
		return r.listBindings(ctx, q, resolved)
	})
}

func (r *Resolver) listBindings(ctx context.Context, q storerouter.Queryer, id uuid.UUID) ([]Binding, error) {
	rows, err := q.Query(ctx, `SELECT platform, platform_id, verified, linked_at FROM identity_bindings WHERE identity_id = `+r.ph(1),
		r.idArg(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		var linkedAt time.Time
		if err := rows.Scan(&b.Platform, &b.PlatformID, &b.Verified, &linkedAt); err != nil {
			return nil, err
		}
		b.LinkedAt = linkedAt
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// followMergeChain walks identities.merged_into until it reaches a
// survivor, so a resolve/link against an absorbed id still lands on the
// live identity.
func (r *Resolver) followMergeChain(ctx context.Context, q storerouter.Queryer, id uuid.UUID) (uuid.UUID, error) {
	current := id
	for range [8]struct{}{} { // merge chains are never this deep in practice; bounds a pathological loop
		row := q.QueryRow(ctx, `SELECT merged_into FROM identities WHERE id = `+r.ph(1), r.idArg(current))
		var raw any
		if err := row.Scan(&raw); err != nil {
			return uuid.Nil, apierr.ErrInvalidRequest.Wrap(err)
		}
		if raw == nil {
			return current, nil
		}
		next, err := r.parseUUID(raw)
		if err != nil {
			return uuid.Nil, err
		}
		current = next
	}
	return current, nil
}

func (r *Resolver) markVerified(ctx context.Context, q storerouter.Queryer, platform, platformID string) error {
	return q.Exec(ctx, `UPDATE identity_bindings SET verified = `+r.ph(1)+` WHERE platform = `+r.ph(2)+` AND platform_id = `+r.ph(3),
		true, platform, platformID)
}

func (r *Resolver) scanUUID(row storerouter.Row, dest *any) error {
	return row.Scan(dest)
}

func (r *Resolver) parseUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	case []byte:
		return uuid.Parse(string(v))
	default:
		return uuid.Nil, fmt.Errorf("identity: unexpected id scan type %T", raw)
	}
}

// idArg returns the bind value for an id column: pgx accepts uuid.UUID
// directly, database/sql (sqlite) needs the string form.
func (r *Resolver) idArg(id uuid.UUID) any {
	if r.backend == BackendPostgres {
		return id
	}
	return id.String()
}

func (r *Resolver) now() any {
	if r.backend == BackendPostgres {
		return time.Now().UTC()
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}
