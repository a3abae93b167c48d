package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DT_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load(filepath.Join("..", "..", "testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/dt", cfg.Server.Prefix)
	assert.Equal(t, 4, cfg.Pool.MaxConnections)
	assert.Equal(t, "sql", cfg.Cache.Driver)
	assert.Equal(t, "json", cfg.Logging.Format)

	db, err := cfg.DefaultDatabase()
	require.NoError(t, err)
	assert.Equal(t, "main", db.Name)
	assert.Equal(t, "postgres", db.Driver)
	assert.Equal(t, "host=db.internal port=5432 user=app password=secret dbname=app sslmode=disable search_path=crm,public", db.DSN())

	assert.Equal(t, "file:demo.db", cfg.Database[0].DSN())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  - name: one\n    driver: sqlite3\n"))
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.Application.Namespace)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/datatables", cfg.Server.Prefix)
	assert.Equal(t, 10, cfg.Pool.MaxConnections)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)

	db, err := cfg.DefaultDatabase()
	require.NoError(t, err)
	assert.Equal(t, "one", db.Name)
	assert.Equal(t, "file::memory:?cache=shared", db.DSN())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.Error(t, err)

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	_, err = cfg.DefaultDatabase()
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Duration("2m", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("soon", time.Second))
	assert.Equal(t, time.Second, Duration("-1m", time.Second))
}
