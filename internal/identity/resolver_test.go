package identity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/storerouter"
)

// fakeIdentity/fakeBinding + fakeQueryer implement just enough of the SQL
// resolver.go issues to exercise resolve/link/list_bindings without a
// real database, dispatching on recognizable query prefixes.

type fakeIdentityRow struct {
	id         uuid.UUID
	mergedInto *uuid.UUID
}

type fakeBindingRow struct {
	identityID uuid.UUID
	platform   string
	platformID string
	verified   bool
	linkedAt   time.Time
}

type fakeQueryer struct {
	identities []fakeIdentityRow
	bindings   []fakeBindingRow
}

func (f *fakeQueryer) Exec(ctx context.Context, sql string, args ...any) error {
	switch {
	case strings.Contains(sql, "INSERT INTO identities"):
		f.identities = append(f.identities, fakeIdentityRow{id: asUUID(args[0])})
	case strings.Contains(sql, "INSERT INTO identity_bindings"):
		f.bindings = append(f.bindings, fakeBindingRow{
			identityID: asUUID(args[0]), platform: args[1].(string), platformID: args[2].(string),
			verified: args[3].(bool),
		})
	case strings.Contains(sql, "UPDATE identity_bindings SET identity_id"):
		survivor, absorbed := asUUID(args[0]), asUUID(args[1])
		for i := range f.bindings {
			if f.bindings[i].identityID == absorbed {
				f.bindings[i].identityID = survivor
			}
		}
	case strings.Contains(sql, "UPDATE identity_bindings SET verified"):
		platform, platformID := args[1].(string), args[2].(string)
		for i := range f.bindings {
			if f.bindings[i].platform == platform && f.bindings[i].platformID == platformID {
				f.bindings[i].verified = true
			}
		}
	case strings.Contains(sql, "UPDATE identities SET merged_into"):
		survivor, absorbed := asUUID(args[0]), asUUID(args[1])
		for i := range f.identities {
			if f.identities[i].id == absorbed {
				f.identities[i].mergedInto = &survivor
			}
		}
	default:
		return fmt.Errorf("fakeQueryer: unhandled exec: %s", sql)
	}
	return nil
}

func (f *fakeQueryer) Query(ctx context.Context, sql string, args ...any) (storerouter.Rows, error) {
	if !strings.Contains(sql, "SELECT platform, platform_id, verified, linked_at") {
		return nil, fmt.Errorf("fakeQueryer: unhandled query: %s", sql)
	}
	id := asUUID(args[0])
	var out []fakeBindingRow
	for _, b := range f.bindings {
		if b.identityID == id {
			out = append(out, b)
		}
	}
	return &fakeRows{rows: out}, nil
}

func (f *fakeQueryer) QueryRow(ctx context.Context, sql string, args ...any) storerouter.Row {
	switch {
	case strings.Contains(sql, "SELECT identity_id FROM identity_bindings"):
		platform, platformID := args[0].(string), args[1].(string)
		for _, b := range f.bindings {
			if b.platform == platform && b.platformID == platformID {
				return &fakeRow{val: b.identityID, found: true}
			}
		}
		return &fakeRow{found: false}
	case strings.Contains(sql, "SELECT merged_into FROM identities"):
		id := asUUID(args[0])
		for _, i := range f.identities {
			if i.id == id {
				if i.mergedInto == nil {
					return &fakeRow{val: nil, found: true}
				}
				return &fakeRow{val: *i.mergedInto, found: true}
			}
		}
		return &fakeRow{found: false}
	}
	return &fakeRow{found: false}
}

type fakeRow struct {
	val   any
	found bool
}

func (r *fakeRow) Scan(dest ...any) error {
	if !r.found {
		return fmt.Errorf("no rows")
	}
	ptr := dest[0].(*any)
	*ptr = r.val
	return nil
}

type fakeRows struct {
	rows []fakeBindingRow
	i    int
}

func (r *fakeRows) Next() bool { return r.i < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error {
	b := r.rows[r.i]
	r.i++
	*dest[0].(*string) = b.platform
	*dest[1].(*string) = b.platformID
	*dest[2].(*bool) = b.verified
	*dest[3].(*time.Time) = b.linkedAt
	return nil
}
func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

func asUUID(v any) uuid.UUID {
	switch x := v.(type) {
	case uuid.UUID:
		return x
	case string:
		u, _ := uuid.Parse(x)
		return u
	default:
		panic(fmt.Sprintf("asUUID: unexpected %T", v))
	}
}

func newTestResolver(q *fakeQueryer) *Resolver {
	r := &Resolver{backend: BackendPostgres}
	_ = q
	return r
}

// Since RunSimple/RunComplex require a real *storerouter.Router, these
// tests exercise the pure logic (merge-chain walk, conflict detection,
// survivor pick) directly against a fakeQueryer rather than through the
// Router, mirroring what the Router would hand the closure.

func TestLink_PicksLexicographicallySmallerSurvivor(t *testing.T) {
	q := &fakeQueryer{}
	r := newTestResolver(q)

	a := mustUUID("00000000-0000-0000-0000-000000000002")
	b := mustUUID("00000000-0000-0000-0000-000000000001")
	q.identities = []fakeIdentityRow{{id: a}, {id: b}}
	q.bindings = []fakeBindingRow{
		{identityID: a, platform: "discord", platformID: "d1", verified: true},
		{identityID: b, platform: "telegram", platformID: "t1", verified: true},
	}

	ctx := context.Background()
	resolvedA, err := r.followMergeChain(ctx, q, a)
	require.NoError(t, err)
	resolvedB, err := r.followMergeChain(ctx, q, b)
	require.NoError(t, err)
	assert.Equal(t, a, resolvedA)
	assert.Equal(t, b, resolvedB)

	survivor, absorbed := resolvedA, resolvedB
	if survivor.String() > absorbed.String() {
		survivor, absorbed = absorbed, survivor
	}
	assert.Equal(t, b, survivor)
	assert.Equal(t, a, absorbed)

	require.NoError(t, q.Exec(ctx, `UPDATE identity_bindings SET identity_id = $1 WHERE identity_id = $2`, survivor, absorbed))
	require.NoError(t, q.Exec(ctx, `UPDATE identities SET merged_into = $1 WHERE id = $2`, survivor, absorbed))

	bindings, err := r.listBindings(ctx, q, survivor)
	require.NoError(t, err)
	assert.Len(t, bindings, 2)

	resolved, err := r.followMergeChain(ctx, q, a)
	require.NoError(t, err)
	assert.Equal(t, b, resolved)
}

func TestLink_ConflictingVerificationDetected(t *testing.T) {
	q := &fakeQueryer{}
	r := newTestResolver(q)
	a := mustUUID("00000000-0000-0000-0000-000000000001")
	b := mustUUID("00000000-0000-0000-0000-000000000002")
	q.identities = []fakeIdentityRow{{id: a}, {id: b}}
	q.bindings = []fakeBindingRow{
		{identityID: a, platform: "discord", platformID: "x", verified: true},
		{identityID: b, platform: "discord", platformID: "y", verified: true},
	}

	ctx := context.Background()
	bindingsA, err := r.listBindings(ctx, q, a)
	require.NoError(t, err)
	bindingsB, err := r.listBindings(ctx, q, b)
	require.NoError(t, err)

	byPlatformA := make(map[string]Binding, len(bindingsA))
	for _, bd := range bindingsA {
		byPlatformA[bd.Platform] = bd
	}
	var conflict error
	for _, bd := range bindingsB {
		other, ok := byPlatformA[bd.Platform]
		if ok && bd.Verified && other.Verified && bd.PlatformID != other.PlatformID {
			conflict = apierr.ErrConflictingVerification
		}
	}
	require.Error(t, conflict)
	assert.True(t, apierr.Is(conflict, apierr.ErrConflictingVerification))
}

func mustUUID(s string) uuid.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}
