package datatables

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gnemet/datatables/cache"
	"github.com/gnemet/datatables/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// usersTable is a Go definition counting its configuration passes.
type usersTable struct {
	rev   string
	calls *int
}

func (usersTable) Name() string  { return "users" }
func (usersTable) Table() string { return "Users" }

func (d usersTable) Identity() string { return "users@" + d.rev }

func (d usersTable) Configure(b *ConfigBundle) error {
	*d.calls++
	for _, ref := range []string{"id", "name", "Roles.title"} {
		if _, err := b.AddDatabaseColumn(ref); err != nil {
			return err
		}
	}
	if _, err := b.AddNonDatabaseColumn("actions"); err != nil {
		return err
	}
	b.Query.AddWhere(`"Users"."id" > ?`, 0).AddOrder("Users.name", Asc)
	b.Options.DateFormat = "2006-01-02"
	return b.Options.SetSelectStyle("single")
}

type brokenTable struct{}

func (brokenTable) Name() string  { return "broken" }
func (brokenTable) Table() string { return "Users" }
func (brokenTable) Configure(b *ConfigBundle) error {
	if _, err := b.AddDatabaseColumn("name"); err != nil {
		return err
	}
	_, err := b.AddDatabaseColumn("Users.name")
	return err
}

type clientSideTable struct{}

func (clientSideTable) Name() string  { return "client" }
func (clientSideTable) Table() string { return "Users" }
func (clientSideTable) Configure(b *ConfigBundle) error {
	if _, err := b.AddDatabaseColumn("name"); err != nil {
		return err
	}
	return b.Options.SetServerSide(false)
}

func newTestBuilder(t *testing.T, store cache.Store, defs ...Definition) *Builder {
	t.Helper()
	reg := NewRegistry("app")
	require.NoError(t, reg.Register(defs...))
	return NewBuilder(reg, testSchema(t), WithCache(store))
}

func newMemoryStore(t *testing.T) *cache.Memory {
	t.Helper()
	m, err := cache.NewMemory(16)
	require.NoError(t, err)
	return m
}

func TestGetConfigBundleCachesByContentHash(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0
	b := newTestBuilder(t, store, usersTable{rev: "1", calls: &calls})

	first, err := b.GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, store.Len())
	assert.True(t, first.Assets.Has("select"), "select options enable the select plugin")

	second, err := b.GetConfigBundle(ctx, "app/users")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "cache hit must not configure again")
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, first.Columns.All(), second.Columns.All())
	assert.Equal(t, int64(0), second.Query.Where[0].Args[0], "whole numbers decode as integers")
	assert.Equal(t, "2006-01-02", second.Options.DateFormat)
	assert.Equal(t, first.Assets, second.Assets)

	// the cached registry is usable for translation
	_, err = BuildQuery(&Request{Length: 10}, second.Columns, second.Query)
	require.NoError(t, err)
}

func TestGetConfigBundleHashMismatchRebuilds(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0

	_, err := newTestBuilder(t, store, usersTable{rev: "1", calls: &calls}).GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	_, err = newTestBuilder(t, store, usersTable{rev: "2", calls: &calls}).GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a changed identity invalidates the cached bundle")

	b := NewBuilder(newTestBuilder(t, store, usersTable{rev: "2", calls: &calls}).Registry(), testSchema(t),
		WithCache(store), WithLibraryVersion("9.9.9"))
	_, err = b.GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "a new library version invalidates the cached bundle")
}

// usersSchema is a Users/Roles schema whose Users table carries id, role_id
// and the given varchar fields.
func usersSchema(t *testing.T, userFields ...string) *Schema {
	t.Helper()
	fields := []Field{{Name: "id", Type: "integer"}, {Name: "role_id", Type: "integer"}}
	for _, f := range userFields {
		fields = append(fields, Field{Name: f, Type: "varchar"})
	}
	s, err := NewSchema(
		&Table{Name: "Users", SQLName: "users", Fields: fields, Associations: []Association{
			{Name: "Roles", Kind: BelongsTo, Target: "Roles", ForeignKey: "role_id"},
		}},
		&Table{Name: "Roles", SQLName: "roles", Fields: []Field{{Name: "id", Type: "integer"}, {Name: "title", Type: "varchar"}}},
	)
	require.NoError(t, err)
	return s
}

func TestGetConfigBundleSchemaChangeRebuilds(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0
	reg := NewRegistry("app")
	require.NoError(t, reg.Register(usersTable{rev: "1", calls: &calls}))

	_, err := NewBuilder(reg, usersSchema(t, "name"), WithCache(store)).GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	_, err = NewBuilder(reg, usersSchema(t, "name"), WithCache(store)).GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "an identical schema reuses the cached bundle")

	_, err = NewBuilder(reg, usersSchema(t, "name", "email"), WithCache(store)).GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a changed schema invalidates the cached bundle")

	_, err = NewBuilder(reg, usersSchema(t), WithCache(store)).GetConfigBundle(ctx, "users")
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorContains(t, err, "Users has no field name")
	assert.Equal(t, 3, calls)
}

func TestGetConfigBundleBypassCache(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0
	b := newTestBuilder(t, store, usersTable{rev: "1", calls: &calls})

	_, err := b.GetConfigBundle(ctx, "users", BypassCache())
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len(), "bypassing leaves the cache untouched")

	_, err = b.GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	_, err = b.GetConfigBundle(ctx, "users", BypassCache())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGetConfigBundleResolutionErrors(t *testing.T) {
	ctx := context.Background()
	calls := 0
	b := newTestBuilder(t, cache.Nop{}, usersTable{rev: "1", calls: &calls}, brokenTable{}, clientSideTable{})

	var cfgErr *ConfigurationError
	_, err := b.GetConfigBundle(ctx, "orders")
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "orders", cfgErr.Ref)
	assert.ErrorIs(t, err, ErrUnknownDefinition)

	_, err = b.GetConfigBundle(ctx, "admin/users")
	assert.ErrorIs(t, err, ErrForeignDefinition)

	_, err = b.GetConfigBundle(ctx, "broken")
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = b.GetConfigBundle(ctx, "client")
	assert.ErrorIs(t, err, ErrServerSideRequired)
}

func TestGetConfigBundleSessionOverlay(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	calls := 0
	b := newTestBuilder(t, store, usersTable{rev: "1", calls: &calls})

	base, err := b.GetConfigBundle(ctx, "users")
	require.NoError(t, err)
	cachedBefore, _, _ := store.Read(ctx, b.cacheKey(usersTable{}))

	cols, err := NewColumns(b.Schema(), "Users")
	require.NoError(t, err)
	_, err = cols.AddDatabaseColumn("email")
	require.NoError(t, err)

	opts := NewOptions()
	require.NoError(t, opts.SetPageLength(50))
	optsJSON, err := json.Marshal(opts)
	require.NoError(t, err)

	sm := session.NewManager(0, 0)
	sess := sm.Start()
	sess.Write(SessionKey("users", SessionColumns, "/page"), cols)
	sess.Write(SessionKey("users", SessionOptions, "/page"), optsJSON)

	got, err := b.GetConfigBundle(ctx, "users", WithSession(sess, "/page"))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Columns.Len())
	assert.Equal(t, 50, got.Options.PageLength)
	assert.Equal(t, base.Query, got.Query, "pieces without an override are kept")

	other, err := b.GetConfigBundle(ctx, "users", WithSession(sess, "/elsewhere"))
	require.NoError(t, err)
	assert.Equal(t, 4, other.Columns.Len(), "overrides are keyed by url")

	cachedAfter, _, _ := store.Read(ctx, b.cacheKey(usersTable{}))
	assert.Equal(t, cachedBefore, cachedAfter, "the cached bundle is untouched")
	assert.Equal(t, 1, calls)

	sess.Write(SessionKey("users", SessionQuery, "/page"), 42)
	_, err = b.GetConfigBundle(ctx, "users", WithSession(sess, "/page"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestGetConfigBundleRendererFromDefinition(t *testing.T) {
	calls := 0
	def := renderedTable{usersTable{rev: "1", calls: &calls}}
	b := newTestBuilder(t, newMemoryStore(t), def)

	for range 2 {
		bundle, err := b.GetConfigBundle(context.Background(), "users")
		require.NoError(t, err)
		cells, err := bundle.RowRenderer().RenderRow(Row{}, bundle.Columns.All())
		require.NoError(t, err)
		assert.Equal(t, []any{"custom"}, cells)
	}
}

type renderedTable struct{ usersTable }

func (renderedTable) RenderRow(Row, []*Column) ([]any, error) { return []any{"custom"}, nil }

func TestRegistry(t *testing.T) {
	calls := 0
	reg := NewRegistry("app")
	require.NoError(t, reg.Register(usersTable{calls: &calls}, brokenTable{}))
	assert.Equal(t, []string{"broken", "users"}, reg.Names())
	assert.ErrorIs(t, reg.Register(usersTable{calls: &calls}), ErrInvalidConfiguration)

	d, err := reg.Resolve("app/users")
	require.NoError(t, err)
	assert.Equal(t, "users", d.Name())
}

func TestRegistryRegisterIsAllOrNothing(t *testing.T) {
	reg := NewRegistry("app")
	require.NoError(t, reg.Register(brokenTable{}))

	calls := 0
	assert.ErrorIs(t, reg.Register(clientSideTable{}, usersTable{calls: &calls}, brokenTable{}), ErrInvalidConfiguration)
	assert.ErrorIs(t, reg.Register(clientSideTable{}, clientSideTable{}), ErrInvalidConfiguration)
	assert.Equal(t, []string{"broken"}, reg.Names())

	require.NoError(t, reg.Register(clientSideTable{}, usersTable{calls: &calls}))
	assert.Equal(t, []string{"broken", "client", "users"}, reg.Names())
}

func TestDefaultIdentity(t *testing.T) {
	assert.Equal(t, "datatables.brokenTable:broken", identity(brokenTable{}))
}
