package datatables

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/gnemet/datatables/assets"
	"github.com/gnemet/datatables/database/sqlpool"
	"github.com/gnemet/datatables/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureSQL = []string{
	`CREATE TABLE roles (id INTEGER PRIMARY KEY, title VARCHAR)`,
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR, email VARCHAR, balance NUMERIC, created TIMESTAMP, role_id INTEGER)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER, title VARCHAR)`,
	`INSERT INTO roles VALUES (1, 'admin'), (2, 'editor')`,
	`INSERT INTO users VALUES
		(1, 'Ann', 'ann@example.com', 10.5, '2024-01-02 03:04:05', 1),
		(2, 'Bob', 'bob@example.com', 20, '2024-02-03 04:05:06', 2),
		(3, 'Cid', 'cid@example.com', 30, '2024-03-04 05:06:07', 2)`,
	`INSERT INTO posts VALUES (1, 1, 'First'), (2, 1, 'Second'), (3, 2, 'Third')`,
}

func testPool(t *testing.T) *sqlpool.Pool {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	pool, err := sqlpool.Open(sqlpool.DriverSQLite, dsn, sqlpool.Tuning{MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	for _, stmt := range fixtureSQL {
		_, err := pool.DB().Exec(stmt)
		require.NoError(t, err)
	}
	return pool
}

func testServer(t *testing.T) *Server {
	t.Helper()
	root := fstest.MapFS{
		"1.13.8/css/jquery.dataTables.min.css": {Data: []byte("table.dataTable{}")},
		"1.13.8/js/jquery.dataTables.min.js":   {Data: []byte("/*! DataTables */")},
	}
	return NewServer(catalogBuilder(t), NewSQLExecutor(testPool(t), SQLite), assets.NewSelector(root), "/dt/")
}

func serve(t *testing.T, h http.Handler, r *http.Request) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestServerDataDefaultOrder(t *testing.T) {
	h := testServer(t).Handler()

	w, resp := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/users/data?draw=4&start=0&length=2", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 4, resp.Draw)
	assert.Equal(t, 3, resp.RecordsTotal)
	assert.Equal(t, 3, resp.RecordsFiltered)
	require.Len(t, resp.Data, 2)

	// id desc from the definition's query defaults
	assert.Equal(t, []any{float64(3), "Cid", "cid@example.com", "editor", "", "CID", ""}, resp.Data[0])
	assert.Equal(t, []any{float64(2), "Bob", "bob@example.com", "editor", "Third", "BOB", ""}, resp.Data[1])
}

func TestServerDataSearchAndOrder(t *testing.T) {
	h := testServer(t).Handler()

	q := url.Values{
		"draw":             {"7"},
		"start":            {"0"},
		"length":           {"10"},
		"search[value]":    {"ann"},
		"order[0][column]": {"1"},
		"order[0][dir]":    {"asc"},
	}
	w, resp := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/users/data?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, resp.RecordsTotal)
	assert.Equal(t, 1, resp.RecordsFiltered)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Ann", resp.Data[0][1])
	assert.Equal(t, "First, Second", resp.Data[0][4])

	q.Set("search[value]", "^(bob|cid)$")
	q.Set("search[regex]", "true")
	q.Set("order[0][dir]", "desc")
	_, resp = serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/users/data?"+q.Encode(), nil))
	assert.Equal(t, 2, resp.RecordsFiltered)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Cid", resp.Data[0][1])
	assert.Equal(t, "Bob", resp.Data[1][1])
}

func TestServerDataRequestErrors(t *testing.T) {
	h := testServer(t).Handler()

	cases := map[string]string{
		"order out of range":  "draw=5&order[0][column]=9&order[0][dir]=asc",
		"unorderable column":  "draw=5&order[0][column]=6&order[0][dir]=asc",
		"hasMany column":      "draw=5&order[0][column]=4&order[0][dir]=asc",
		"column out of range": "draw=5&columns[8][data]=8&columns[8][search][value]=x",
	}
	for name, query := range cases {
		w, resp := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/users/data?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Equal(t, 5, resp.Draw, name)
		assert.NotEmpty(t, resp.Error, name)
	}

	w, resp := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/users/data?start=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, resp.Error)
}

func TestServerDataMethod(t *testing.T) {
	h := testServer(t).Handler()

	w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/roles/data", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))

	r := httptest.NewRequest(http.MethodPost, "/dt/roles/data", strings.NewReader("draw=1&start=0&length=10"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, resp := serve(t, h, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, resp.RecordsTotal)
	assert.Len(t, resp.Data, 2)
}

func TestServerUnknownTable(t *testing.T) {
	h := testServer(t).Handler()
	for _, target := range []string{"/dt/orders/data", "/dt/orders/config"} {
		w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
}

func TestServerConfig(t *testing.T) {
	h := testServer(t).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dt/users/config", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "/dt/users/data", cfg["ajax"].(map[string]any)["url"])
	assert.Len(t, cfg["columns"], 7)
}

func TestServerAssets(t *testing.T) {
	h := testServer(t).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dt/assets/css", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "table.dataTable{}\n", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dt/assets/js?theme=bootstrap4", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "the bootstrap integration file is missing")
}

func TestServerSessionOverride(t *testing.T) {
	sm := session.NewManager(0, 0)
	h := sm.Middleware(testServer(t).Handler())

	w, _ := serve(t, h, httptest.NewRequest(http.MethodGet, "/dt/roles/data", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	sess, ok := sm.Get(cookies[0].Value)
	require.True(t, ok)

	opts := NewOptions()
	require.NoError(t, opts.SetAjaxType("GET"))
	sess.Write(SessionKey("roles", SessionOptions, "/dt/roles/data"), opts)

	r := httptest.NewRequest(http.MethodGet, "/dt/roles/data?draw=2", nil)
	r.AddCookie(cookies[0])
	w, resp := serve(t, h, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, resp.Draw)
	assert.Equal(t, 1, sm.Len())
}
