package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// DefaultListLimit caps ListRecent when no positive limit is given.
const DefaultListLimit = 50

// Repository provides database access for the dispatch audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordDispatch inserts one dispatch attempt. Re-recording the same ID is a no-op.
func (r *Repository) RecordDispatch(ctx context.Context, rec DispatchRecord) error {
	slog.Debug(fmt.Sprintf("%s - RecordDispatch id=%s operation=%s ok=%t", repoLogPrefix, rec.ID, rec.Operation, rec.Ok))

	created := rec.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var args any
	if len(rec.Arguments) > 0 {
		args = string(rec.Arguments)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO dispatch_log (id, operation, arguments, ok, code, message, raw, created)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Operation, args, rec.Ok, rec.Code, rec.Message, rec.Raw, created)
	if err != nil {
		return fmt.Errorf("%s - insert dispatch %s: %w", repoLogPrefix, rec.ID, err)
	}
	return nil
}

// GetDispatch finds a dispatch record by ID. Returns nil when absent.
func (r *Repository) GetDispatch(ctx context.Context, id string) (*DispatchRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, operation, arguments, ok, code, message, raw, created
		 FROM dispatch_log
		 WHERE id = $1`, id)
	rec, err := scanDispatch(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListRecent returns the newest dispatch records, optionally for one operation.
func (r *Repository) ListRecent(ctx context.Context, operation string, limit int) ([]DispatchRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	slog.Debug(fmt.Sprintf("%s - ListRecent operation=%q limit=%d", repoLogPrefix, operation, limit))

	rows, err := r.pool.Query(ctx,
		`SELECT id, operation, arguments, ok, code, message, raw, created
		 FROM dispatch_log
		 WHERE ($1 = '' OR operation = $1)
		 ORDER BY created DESC, id
		 LIMIT $2`, operation, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - list dispatches: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountByCode returns the number of attempts per outcome code, most frequent first.
func (r *Repository) CountByCode(ctx context.Context) ([]CodeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, count(*) FROM dispatch_log GROUP BY code ORDER BY count(*) DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("%s - count by code: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CodeCount
	for rows.Next() {
		var c CodeCount
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, fmt.Errorf("%s - scan count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanDispatch(row pgx.Row) (*DispatchRecord, error) {
	var rec DispatchRecord
	err := row.Scan(&rec.ID, &rec.Operation, &rec.Arguments, &rec.Ok, &rec.Code, &rec.Message, &rec.Raw, &rec.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%s - scan dispatch: %w", repoLogPrefix, err)
	}
	return &rec, nil
}
