package storerouter

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is the minimal single-row scan result both backends expose.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the minimal multi-row cursor both backends expose.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Queryer is the subset of *pgxpool.Pool / *sql.DB that store packages need.
// It lets the Memory/Session/Identity/Raid stores stay backend-agnostic:
// the Postgres router hands them a pgx-backed Queryer, the standalone
// router hands them a database/sql-backed one.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// --- pgx adapter ---

type pgxQueryer struct{ pool *pgxpool.Pool }

func (q pgxQueryer) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.pool.Exec(ctx, query, args...)
	return err
}

func (q pgxQueryer) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (q pgxQueryer) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.pool.QueryRow(ctx, query, args...)
}

type pgxRows struct{ pgx.Rows }

func (r pgxRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

// --- database/sql adapter (standalone sqlite backend) ---

type sqlQueryer struct{ db *sql.DB }

func (q sqlQueryer) Exec(ctx context.Context, query string, args ...any) error {
	_, err := q.db.ExecContext(ctx, query, args...)
	return err
}

func (q sqlQueryer) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (q sqlQueryer) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.db.QueryRowContext(ctx, query, args...)
}
