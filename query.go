package datatables

import (
	"fmt"
	"strings"
)

// Direction of an order clause.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// ParseDirection accepts asc/desc in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	}
	return "", fmt.Errorf("%w: order direction %q", ErrBadRequest, s)
}

// Ref points at a value of the backing store: a table field or, when Expr
// is set, a computed expression.
type Ref struct {
	Table string `json:"table,omitempty"`
	Field string `json:"field,omitempty"`
	Expr  string `json:"expr,omitempty"`
}

func (r Ref) String() string {
	if r.Expr != "" {
		return r.Expr
	}
	return r.Table + "." + r.Field
}

// SelectField is one entry of the select list.
type SelectField struct {
	Ref   Ref    `json:"ref"`
	Alias string `json:"alias"`
}

// Join is an explicit join. On may contain ? placeholders bound to Args.
type Join struct {
	Type  string `json:"type"` // LEFT, INNER
	Table string `json:"table"`
	Alias string `json:"alias"`
	On    string `json:"on"`
	Args  []any  `json:"args,omitempty"`
}

// Clause is a raw condition with ? placeholders.
type Clause struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

// Operator of a search condition.
type Operator string

const (
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// Condition matches a column against a search term.
type Condition struct {
	Ref   Ref      `json:"ref"`
	Op    Operator `json:"op"`
	Value string   `json:"value"`
}

// ConditionGroup is a disjunction of conditions.
type ConditionGroup []Condition

// Order is one order clause.
type Order struct {
	Ref Ref       `json:"ref"`
	Dir Direction `json:"dir"`
}

// Preload fetches the records of a hasMany association for the rows of the
// main query.
type Preload struct {
	Association  string   `json:"association"`
	Table        string   `json:"table"`
	ForeignKey   string   `json:"foreignKey"`
	BindingAlias string   `json:"bindingAlias"`
	Fields       []string `json:"fields"`
	Columns      []string `json:"columns"`
}

// Source is the primary table of a query.
type Source struct {
	Table string `json:"table"`
	Alias string `json:"alias"`
}

// QueryDefaults is the query baseline configured by a definition.
type QueryDefaults struct {
	Joins   []Join   `json:"joins,omitempty"`
	Where   []Clause `json:"where,omitempty"`
	Order   []Order  `json:"order,omitempty"`
	Contain []string `json:"contain,omitempty"`
}

// AddWhere appends a raw condition.
func (d *QueryDefaults) AddWhere(sql string, args ...any) *QueryDefaults {
	d.Where = append(d.Where, Clause{SQL: sql, Args: args})
	return d
}

// AddJoin appends an explicit join.
func (d *QueryDefaults) AddJoin(typ, table, alias, on string, args ...any) *QueryDefaults {
	d.Joins = append(d.Joins, Join{Type: strings.ToUpper(typ), Table: table, Alias: alias, On: on, Args: args})
	return d
}

// AddContain requests an association to be eager-loaded.
func (d *QueryDefaults) AddContain(associations ...string) *QueryDefaults {
	d.Contain = append(d.Contain, associations...)
	return d
}

// AddOrder appends a fallback order clause used when a request carries
// none. field is "Table.field".
func (d *QueryDefaults) AddOrder(field string, dir Direction) *QueryDefaults {
	table, name, _ := strings.Cut(field, ".")
	d.Order = append(d.Order, Order{Ref: Ref{Table: table, Field: name}, Dir: dir})
	return d
}

// validate checks the defaults against the registry's schema.
func (d *QueryDefaults) validate(cols *Columns) error {
	for _, a := range d.Contain {
		if _, _, err := cols.schema.resolveTable(cols.primary, a); err != nil {
			return fmt.Errorf("%w: contain %s: %v", ErrInvalidConfiguration, a, err)
		}
	}
	for _, o := range d.Order {
		if o.Ref.Expr != "" {
			continue
		}
		if _, err := cols.schema.resolve(cols.primary, o.Ref.Table+"."+o.Ref.Field); err != nil {
			return fmt.Errorf("%w: default order: %v", ErrInvalidConfiguration, err)
		}
		if o.Dir != Asc && o.Dir != Desc {
			return fmt.Errorf("%w: default order direction %q", ErrInvalidConfiguration, o.Dir)
		}
	}
	for _, j := range d.Joins {
		if j.Type != "LEFT" && j.Type != "INNER" && j.Type != "RIGHT" {
			return fmt.Errorf("%w: join type %q", ErrInvalidConfiguration, j.Type)
		}
		if j.Table == "" || j.On == "" {
			return fmt.Errorf("%w: join needs a table and a condition", ErrInvalidConfiguration)
		}
	}
	return nil
}

// Query is the fully translated backing-store query.
type Query struct {
	From     Source           `json:"from"`
	Fields   []SelectField    `json:"fields"`
	Contain  []string         `json:"contain,omitempty"`
	Joins    []Join           `json:"joins,omitempty"`
	Where    []Clause         `json:"where,omitempty"`
	Filters  []ConditionGroup `json:"filters,omitempty"`
	Order    []Order          `json:"order,omitempty"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"` // 0 means no limit
	Preloads []Preload        `json:"preloads,omitempty"`
}

// Offset is the number of rows skipped by the page directive.
func (q *Query) Offset() int {
	if q.PageSize <= 0 || q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

func (q *Query) hasRegex() bool {
	for _, g := range q.Filters {
		for _, c := range g {
			if c.Op == OpRegex {
				return true
			}
		}
	}
	return false
}

// withoutRegex copies q with every regex condition removed. The contains
// condition paired with each regex keeps the groups non-empty.
func (q *Query) withoutRegex() *Query {
	out := *q
	out.Filters = make([]ConditionGroup, 0, len(q.Filters))
	for _, g := range q.Filters {
		kept := make(ConditionGroup, 0, len(g))
		for _, c := range g {
			if c.Op != OpRegex {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			out.Filters = append(out.Filters, kept)
		}
	}
	return &out
}
