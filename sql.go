package datatables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect selects the SQL flavour a Query is rendered in.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// ParseDialect maps a database driver name onto a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfiguration, driver)
}

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Statement is rendered SQL with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

type sqlWriter struct {
	d    Dialect
	args []any
}

func (w *sqlWriter) arg(v any) string {
	w.args = append(w.args, v)
	if w.d == Postgres {
		return "$" + strconv.Itoa(len(w.args))
	}
	return "?"
}

// rebind replaces ? placeholders of a raw clause with dialect placeholders.
func (w *sqlWriter) rebind(sql string, args []any) (string, error) {
	if n := strings.Count(sql, "?"); n != len(args) {
		return "", fmt.Errorf("%w: clause %q has %d placeholders for %d args", ErrInvalidConfiguration, sql, n, len(args))
	}
	var b strings.Builder
	i := 0
	for _, r := range sql {
		if r == '?' {
			b.WriteString(w.arg(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func refSQL(r Ref) string {
	if r.Expr != "" {
		return "(" + r.Expr + ")"
	}
	return quoteIdent(r.Table) + "." + quoteIdent(r.Field)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (w *sqlWriter) condition(c Condition) string {
	target := "CAST(" + refSQL(c.Ref) + " AS TEXT)"
	switch c.Op {
	case OpRegex:
		if w.d == Postgres {
			return target + " ~* " + w.arg(c.Value)
		}
		return target + " REGEXP " + w.arg(c.Value)
	default:
		op := " ILIKE "
		if w.d == SQLite {
			op = " LIKE "
		}
		return target + op + w.arg("%"+likeEscaper.Replace(c.Value)+"%") + ` ESCAPE '\'`
	}
}

func (w *sqlWriter) from(q *Query) (string, error) {
	var b strings.Builder
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(q.From.Table))
	b.WriteString(" AS ")
	b.WriteString(quoteIdent(q.From.Alias))
	for _, j := range q.Joins {
		on, err := w.rebind(j.On, j.Args)
		if err != nil {
			return "", err
		}
		alias := j.Alias
		if alias == "" {
			alias = j.Table
		}
		fmt.Fprintf(&b, " %s JOIN %s AS %s ON %s", j.Type, quoteIdent(j.Table), quoteIdent(alias), on)
	}
	return b.String(), nil
}

func (w *sqlWriter) where(q *Query, filtered bool) (string, error) {
	clauses := []string{}
	for _, c := range q.Where {
		sql, err := w.rebind(c.SQL, c.Args)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "("+sql+")")
	}
	if filtered {
		for _, g := range q.Filters {
			parts := make([]string, 0, len(g))
			for _, c := range g {
				parts = append(parts, w.condition(c))
			}
			clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func orderSQL(q *Query) string {
	if len(q.Order) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(q.Order))
	for _, o := range q.Order {
		clauses = append(clauses, refSQL(o.Ref)+" "+string(o.Dir))
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

// RenderSelect renders the page query.
func RenderSelect(q *Query, d Dialect) (Statement, error) {
	w := &sqlWriter{d: d}

	selectCols := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		selectCols = append(selectCols, refSQL(f.Ref)+" AS "+quoteIdent(f.Alias))
	}
	if len(selectCols) == 0 {
		selectCols = append(selectCols, quoteIdent(q.From.Alias)+".*")
	}

	from, err := w.from(q)
	if err != nil {
		return Statement{}, err
	}
	where, err := w.where(q, true)
	if err != nil {
		return Statement{}, err
	}

	sql := "SELECT " + strings.Join(selectCols, ", ") + from + where + orderSQL(q)
	if q.PageSize > 0 {
		sql += fmt.Sprintf(" LIMIT %d OFFSET %d", q.PageSize, q.Offset())
	}
	return Statement{SQL: sql, Args: w.args}, nil
}

// RenderCount renders a row count. Unfiltered counts apply only the
// definition's own conditions, filtered ones add the search groups.
func RenderCount(q *Query, d Dialect, filtered bool) (Statement, error) {
	w := &sqlWriter{d: d}
	from, err := w.from(q)
	if err != nil {
		return Statement{}, err
	}
	where, err := w.where(q, filtered)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*)" + from + where, Args: w.args}, nil
}

// RenderPreload renders the fetch of a hasMany association for the given
// binding key values. The foreign key is selected as __fk.
func RenderPreload(p Preload, keys []any, d Dialect) Statement {
	w := &sqlWriter{d: d}
	cols := []string{quoteIdent(p.ForeignKey) + " AS " + quoteIdent("__fk")}
	for _, f := range p.Fields {
		cols = append(cols, quoteIdent(f))
	}
	params := make([]string, 0, len(keys))
	for _, k := range keys {
		params = append(params, w.arg(k))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s",
		strings.Join(cols, ", "), quoteIdent(p.Table), quoteIdent(p.ForeignKey), strings.Join(params, ", "), quoteIdent(p.ForeignKey))
	return Statement{SQL: sql, Args: w.args}
}
