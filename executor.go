package datatables

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gnemet/datatables/database/sqlpool"
)

// Row is one fetched record keyed by column name.
type Row map[string]any

// Executor runs translated queries against the backing store.
type Executor interface {
	Count(ctx context.Context, q *Query, filtered bool) (int, error)
	Fetch(ctx context.Context, q *Query) ([]Row, error)
}

// SQLExecutor renders queries for a dialect and runs them through a pool.
type SQLExecutor struct {
	Pool    *sqlpool.Pool
	Dialect Dialect
	Logger  *slog.Logger
}

func NewSQLExecutor(pool *sqlpool.Pool, d Dialect) *SQLExecutor {
	return &SQLExecutor{Pool: pool, Dialect: d, Logger: slog.Default()}
}

// Count and Fetch retry without the regex conditions when the store rejects
// a pattern. The translator only screens terms with Go's regexp syntax, which
// the PostgreSQL engine does not fully share.
func (e *SQLExecutor) Count(ctx context.Context, q *Query, filtered bool) (int, error) {
	n, err := e.count(ctx, q, filtered)
	if filtered && e.regexRejected(q, err) {
		return e.count(ctx, q.withoutRegex(), filtered)
	}
	return n, err
}

func (e *SQLExecutor) Fetch(ctx context.Context, q *Query) ([]Row, error) {
	rows, err := e.fetch(ctx, q)
	if e.regexRejected(q, err) {
		return e.fetch(ctx, q.withoutRegex())
	}
	return rows, err
}

func (e *SQLExecutor) regexRejected(q *Query, err error) bool {
	if err == nil || !q.hasRegex() || !sqlpool.IsInvalidRegex(err) {
		return false
	}
	e.Logger.Warn("regex search rejected by the database, searching without it", "dialect", e.Dialect, "error", err)
	return true
}

func (e *SQLExecutor) count(ctx context.Context, q *Query, filtered bool) (int, error) {
	stmt, err := RenderCount(q, e.Dialect, filtered)
	if err != nil {
		return 0, err
	}
	return e.Pool.QueryInt(ctx, stmt.SQL, stmt.Args...)
}

func (e *SQLExecutor) fetch(ctx context.Context, q *Query) ([]Row, error) {
	stmt, err := RenderSelect(q, e.Dialect)
	if err != nil {
		return nil, err
	}
	records, err := e.Pool.QueryDirect(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row(rec)
	}

	for _, p := range q.Preloads {
		if err := e.preload(ctx, p, rows); err != nil {
			return nil, fmt.Errorf("preload %s: %w", p.Association, err)
		}
	}
	return rows, nil
}

// preload attaches the hasMany records of p to each row: the value of every
// preloaded column is the slice of the associated field values.
func (e *SQLExecutor) preload(ctx context.Context, p Preload, rows []Row) error {
	for _, r := range rows {
		for _, col := range p.Columns {
			r[col] = []any{}
		}
	}

	keys := []any{}
	seen := map[string]bool{}
	for _, r := range rows {
		k := r[p.BindingAlias]
		if k == nil {
			continue
		}
		id := fmt.Sprint(k)
		if !seen[id] {
			seen[id] = true
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	stmt := RenderPreload(p, keys, e.Dialect)
	records, err := e.Pool.QueryDirect(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return err
	}

	grouped := map[string][]map[string]interface{}{}
	for _, rec := range records {
		id := fmt.Sprint(rec["__fk"])
		grouped[id] = append(grouped[id], rec)
	}
	for _, r := range rows {
		related := grouped[fmt.Sprint(r[p.BindingAlias])]
		for i, col := range p.Columns {
			values := make([]any, 0, len(related))
			for _, rec := range related {
				values = append(values, rec[p.Fields[i]])
			}
			r[col] = values
		}
	}
	e.Logger.Debug("preloaded association", "association", p.Association, "parents", len(keys), "records", len(records))
	return nil
}
