package datatables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTierQuery(t *testing.T) *Query {
	t.Helper()
	cols := newTestColumns(t, "Users.id", "Users.name", "Roles.title")
	defaults := (&QueryDefaults{}).AddWhere(`"Users"."id" > ?`, 0)
	req := &Request{
		Start:  20,
		Length: 10,
		Search: Search{Value: "an%", Regex: true},
		Order:  []OrderRequest{{Column: 1, Dir: "asc"}},
		Columns: []ColumnRequest{
			{Data: 0, Searchable: false},
			{Data: 1, Searchable: true},
			{Data: 2, Searchable: true, Search: Search{Value: "admin"}},
		},
	}
	q, err := BuildQuery(req, cols, defaults)
	require.NoError(t, err)
	return q
}

func TestRenderSelectPostgres(t *testing.T) {
	stmt, err := RenderSelect(twoTierQuery(t), Postgres)
	require.NoError(t, err)

	expected := `SELECT "Users"."id" AS "Users.id", "Users"."name" AS "Users.name", "Roles"."title" AS "Roles.title"` +
		` FROM "users" AS "Users" LEFT JOIN "roles" AS "Roles" ON "Roles"."id" = "Users"."role_id"` +
		` WHERE ("Users"."id" > $1)` +
		` AND (CAST("Users"."name" AS TEXT) ILIKE $2 ESCAPE '\' OR CAST("Users"."name" AS TEXT) ~* $3` +
		` OR CAST("Roles"."title" AS TEXT) ILIKE $4 ESCAPE '\' OR CAST("Roles"."title" AS TEXT) ~* $5)` +
		` AND (CAST("Roles"."title" AS TEXT) ILIKE $6 ESCAPE '\')` +
		` ORDER BY "Users"."name" ASC LIMIT 10 OFFSET 20`
	assert.Equal(t, expected, stmt.SQL)
	assert.Equal(t, []any{0, `%an\%%`, "an%", `%an\%%`, "an%", "%admin%"}, stmt.Args)
}

func TestRenderSelectSQLite(t *testing.T) {
	stmt, err := RenderSelect(twoTierQuery(t), SQLite)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `WHERE ("Users"."id" > ?)`)
	assert.Contains(t, stmt.SQL, `CAST("Users"."name" AS TEXT) LIKE ? ESCAPE '\'`)
	assert.Contains(t, stmt.SQL, `CAST("Users"."name" AS TEXT) REGEXP ?`)
	assert.NotContains(t, stmt.SQL, "$1")
	assert.Len(t, stmt.Args, 6)
}

func TestRenderCount(t *testing.T) {
	q := twoTierQuery(t)

	total, err := RenderCount(q, Postgres, false)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "users" AS "Users" LEFT JOIN "roles" AS "Roles" ON "Roles"."id" = "Users"."role_id" WHERE ("Users"."id" > $1)`, total.SQL)
	assert.Equal(t, []any{0}, total.Args)

	filtered, err := RenderCount(q, Postgres, true)
	require.NoError(t, err)
	assert.Contains(t, filtered.SQL, " AND (CAST(")
	assert.Len(t, filtered.Args, 6)
	assert.NotContains(t, filtered.SQL, "ORDER BY")
	assert.NotContains(t, filtered.SQL, "LIMIT")
}

func TestRenderSelectWithoutLimit(t *testing.T) {
	cols := newTestColumns(t, "Users.id")
	q, err := BuildQuery(&Request{Length: -1}, cols, nil)
	require.NoError(t, err)

	stmt, err := RenderSelect(q, SQLite)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Users"."id" AS "Users.id" FROM "users" AS "Users"`, stmt.SQL)
}

func TestRenderComputedAndPreload(t *testing.T) {
	cols := newTestColumns(t, "Users.name", "Posts.title")
	_, err := cols.AddComputedColumn("Users.upper_name", `UPPER("Users"."name")`)
	require.NoError(t, err)
	q, err := BuildQuery(&Request{Length: 5, Order: []OrderRequest{{Column: 2, Dir: "desc"}}}, cols, nil)
	require.NoError(t, err)

	stmt, err := RenderSelect(q, Postgres)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `(UPPER("Users"."name")) AS "Users.upper_name"`)
	assert.Contains(t, stmt.SQL, `"Users"."id" AS "__bind_Posts"`)
	assert.Contains(t, stmt.SQL, `ORDER BY (UPPER("Users"."name")) DESC`)

	pre := RenderPreload(q.Preloads[0], []any{int64(1), int64(2)}, Postgres)
	assert.Equal(t, `SELECT "user_id" AS "__fk", "title" FROM "posts" WHERE "user_id" IN ($1, $2) ORDER BY "user_id"`, pre.SQL)
	assert.Equal(t, []any{int64(1), int64(2)}, pre.Args)
}

func TestRebindPlaceholderMismatch(t *testing.T) {
	cols := newTestColumns(t, "Users.id")
	defaults := (&QueryDefaults{}).AddWhere(`"Users"."id" BETWEEN ? AND ?`, 1)
	q, err := BuildQuery(&Request{Length: 10}, cols, defaults)
	require.NoError(t, err)

	_, err = RenderSelect(q, Postgres)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	_, err = ParseDialect("oracle")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
