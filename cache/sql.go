package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// entry is one cached value in the datatables_cache table.
type entry struct {
	bun.BaseModel `bun:"table:datatables_cache"`

	Key       string    `bun:"cache_key,pk"`
	Value     []byte    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQL persists entries in a database table through bun, so that several
// server processes can share bundles.
type SQL struct {
	db *bun.DB
}

// NewSQL wraps an open database. driver selects the bun dialect:
// "postgres" or one of the sqlite3 driver names.
func NewSQL(sqldb *sql.DB, driver string) (*SQL, error) {
	var d schema.Dialect
	switch driver {
	case "postgres", "pgx":
		d = pgdialect.New()
	case "sqlite3", "sqlite", "sqlite3_datatables":
		d = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("cache: no bun dialect for driver %q", driver)
	}
	return &SQL{db: bun.NewDB(sqldb, d)}, nil
}

// NewSQLWithDB uses an already configured bun database.
func NewSQLWithDB(db *bun.DB) *SQL {
	return &SQL{db: db}
}

// Migrate creates the cache table when it is missing.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*entry)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("cache: create table: %w", err)
	}
	return nil
}

func (s *SQL) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*entry)(nil)).Where("cache_key = ?", key).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("cache: exists %s: %w", key, err)
	}
	return ok, nil
}

func (s *SQL) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var e entry
	if err := s.db.NewSelect().Model(&e).Where("cache_key = ?", key).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read %s: %w", key, err)
	}
	return e.Value, true, nil
}

func (s *SQL) Save(ctx context.Context, key string, value []byte) error {
	e := entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(&e).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }
