package sqlpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	// DriverSQLite is go-sqlite3 with a REGEXP function registered, so
	// regex search conditions work as they do on PostgreSQL.
	DriverSQLite = "sqlite3_datatables"
)

var regexCache sync.Map // pattern -> *regexp.Regexp

func init() {
	sql.Register(DriverSQLite, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", sqliteRegexp, true)
		},
	})
}

// sqliteRegexp implements "value REGEXP pattern" case-insensitively, like
// the ~* operator. NULL never matches.
func sqliteRegexp(pattern string, value interface{}) (bool, error) {
	var text string
	switch v := value.(type) {
	case nil:
		return false, nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		text = fmt.Sprint(v)
	}

	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(text), nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, fmt.Errorf("%s: %v", invalidRegexMessage, err)
	}
	regexCache.Store(pattern, re)
	return re.MatchString(text), nil
}

// invalidRegexMessage prefixes regex compile errors. It matches the message
// PostgreSQL reports, and survives the trip through the sqlite3 C layer where
// the error value itself does not.
const invalidRegexMessage = "invalid regular expression"

// invalidRegexCode is the SQLSTATE of invalid_regular_expression.
const invalidRegexCode = "2201B"

// IsInvalidRegex reports whether err is the backing store rejecting a
// regular expression pattern.
func IsInvalidRegex(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == invalidRegexCode
	}
	return strings.Contains(err.Error(), invalidRegexMessage)
}

// Tuning holds the connection pool parameters.
type Tuning struct {
	MaxConns    int
	IdleTimeout time.Duration
	AbsTimeout  time.Duration
}

// Pool wraps a tuned *sql.DB and scans rows into maps.
type Pool struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates and pings a tuned pool.
func Open(driver, dsn string, t Tuning) (*Pool, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if t.MaxConns > 0 {
		db.SetMaxOpenConns(t.MaxConns)
		db.SetMaxIdleConns(max(t.MaxConns/2, 1))
	}
	if t.AbsTimeout > 0 {
		db.SetConnMaxLifetime(t.AbsTimeout)
	}
	if t.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(t.IdleTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database.
func New(db *sql.DB) *Pool {
	return &Pool{db: db, logger: slog.Default()}
}

// WithLogger sets the logger used for query tracing.
func (p *Pool) WithLogger(l *slog.Logger) *Pool {
	p.logger = l
	return p
}

func (p *Pool) DB() *sql.DB { return p.db }

func (p *Pool) Close() error {
	return p.db.Close()
}

// QueryDirect runs a query and returns every row as a column-name map.
func (p *Pool) QueryDirect(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	start := time.Now()
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("direct query failed: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	p.logger.Debug("query", "sql", query, "rows", len(results), "elapsed", time.Since(start))
	return results, err
}

// QueryInt runs a single-value integer query such as COUNT(*).
func (p *Pool) QueryInt(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("scalar query failed: %w", err)
	}
	p.logger.Debug("query", "sql", query, "result", n)
	return n, nil
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
