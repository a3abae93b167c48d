package datatables

import (
	"fmt"
	"regexp"
	"strings"
)

// BuildQuery translates a widget request into a backing-store query for
// the registry's table. The request is expected to be validated already.
//
// Filtering is two-tier: the global search term produces one OR group over
// the searchable columns, the per-column terms produce a second one, and
// both groups must hold for a row to match.
func BuildQuery(req *Request, cols *Columns, defaults *QueryDefaults) (*Query, error) {
	if cols == nil || cols.schema == nil {
		return nil, fmt.Errorf("%w: column registry is not bound to a schema", ErrInvalidConfiguration)
	}
	if defaults == nil {
		defaults = &QueryDefaults{}
	}
	schema := cols.schema
	primary, ok := schema.Table(cols.primary)
	if !ok {
		return nil, fmt.Errorf("%w: unknown primary table %s", ErrInvalidConfiguration, cols.primary)
	}

	q := &Query{
		From:  Source{Table: primary.SQLName, Alias: primary.Name},
		Joins: append([]Join(nil), defaults.Joins...),
		Where: append([]Clause(nil), defaults.Where...),
	}

	contain := newOrderedSet(defaults.Contain...)
	preloads := map[string]int{}
	for _, c := range cols.list {
		if !c.Database {
			continue
		}
		if c.Association == HasMany {
			if err := addPreload(q, preloads, schema, primary, c); err != nil {
				return nil, err
			}
			continue
		}
		q.Fields = append(q.Fields, SelectField{Ref: c.Ref(), Alias: c.Name})
		if c.Table != primary.Name {
			contain.add(c.Table)
		}
	}
	q.Contain = contain.items

	for _, name := range q.Contain {
		if name == primary.Name {
			continue
		}
		a, ok := primary.Association(name)
		if !ok {
			return nil, fmt.Errorf("%w: contain %s is not an association of %s", ErrInvalidConfiguration, name, primary.Name)
		}
		if a.Kind == HasMany {
			// loaded through preloads, joining would multiply rows
			continue
		}
		q.Joins = append(q.Joins, associationJoin(schema, primary, a))
	}

	if err := applyOrder(q, req, cols, defaults); err != nil {
		return nil, err
	}
	if err := applyFilters(q, req, cols); err != nil {
		return nil, err
	}

	if req.Length > 0 {
		q.PageSize = req.Length
		q.Page = req.Start/req.Length + 1
	} else {
		q.Page = 1
	}
	return q, nil
}

func associationJoin(schema *Schema, primary *Table, a Association) Join {
	target, _ := schema.Table(a.Target)
	var on string
	switch a.Kind {
	case BelongsTo:
		on = fmt.Sprintf("%s.%s = %s.%s", quoteIdent(a.Name), quoteIdent(a.BindingKey), quoteIdent(primary.Name), quoteIdent(a.ForeignKey))
	default:
		on = fmt.Sprintf("%s.%s = %s.%s", quoteIdent(a.Name), quoteIdent(a.ForeignKey), quoteIdent(primary.Name), quoteIdent(a.BindingKey))
	}
	return Join{Type: "LEFT", Table: target.SQLName, Alias: a.Name, On: on}
}

func addPreload(q *Query, index map[string]int, schema *Schema, primary *Table, c *Column) error {
	a, ok := primary.Association(c.Table)
	if !ok {
		return fmt.Errorf("%w: %s is not an association of %s", ErrInvalidConfiguration, c.Table, primary.Name)
	}
	i, seen := index[a.Name]
	if !seen {
		target, _ := schema.Table(a.Target)
		alias := "__bind_" + a.Name
		q.Fields = append(q.Fields, SelectField{Ref: Ref{Table: primary.Name, Field: a.BindingKey}, Alias: alias})
		q.Preloads = append(q.Preloads, Preload{
			Association:  a.Name,
			Table:        target.SQLName,
			ForeignKey:   a.ForeignKey,
			BindingAlias: alias,
		})
		i = len(q.Preloads) - 1
		index[a.Name] = i
	}
	q.Preloads[i].Fields = append(q.Preloads[i].Fields, c.Field)
	q.Preloads[i].Columns = append(q.Preloads[i].Columns, c.Name)
	return nil
}

func applyOrder(q *Query, req *Request, cols *Columns, defaults *QueryDefaults) error {
	for _, o := range req.Order {
		c, err := cols.ByIndex(o.Column)
		if err != nil {
			return err
		}
		if !c.StoreBacked() || !c.Orderable {
			return fmt.Errorf("%w: column %s cannot be ordered", ErrInvalidArgument, c.Name)
		}
		dir, err := ParseDirection(o.Dir)
		if err != nil {
			return err
		}
		q.Order = append(q.Order, Order{Ref: c.Ref(), Dir: dir})
	}
	if len(q.Order) == 0 {
		q.Order = append(q.Order, defaults.Order...)
	}
	return nil
}

// searchTarget pairs a registry column with the search flags the request
// sent for it.
type searchTarget struct {
	col        *Column
	searchable bool
	search     Search
}

func searchTargets(req *Request, cols *Columns) ([]searchTarget, error) {
	if len(req.Columns) == 0 {
		targets := make([]searchTarget, 0, len(cols.list))
		for _, c := range cols.list {
			targets = append(targets, searchTarget{col: c, searchable: true})
		}
		return targets, nil
	}
	targets := make([]searchTarget, 0, len(req.Columns))
	for _, rc := range req.Columns {
		c, err := cols.ByIndex(rc.Data)
		if err != nil {
			return nil, err
		}
		targets = append(targets, searchTarget{col: c, searchable: rc.Searchable, search: rc.Search})
	}
	return targets, nil
}

func applyFilters(q *Query, req *Request, cols *Columns) error {
	targets, err := searchTargets(req, cols)
	if err != nil {
		return err
	}

	var global ConditionGroup
	if term := req.Search.Value; term != "" {
		useRegex := req.Search.Regex && validRegex(term)
		for _, t := range targets {
			if !t.searchable || !t.col.Searchable || !t.col.StoreBacked() {
				continue
			}
			global = appendConditions(global, t.col.Ref(), term, useRegex)
		}
	}

	var perColumn ConditionGroup
	for _, t := range targets {
		term := t.search.Value
		if term == "" || !t.searchable || !t.col.Searchable || !t.col.StoreBacked() {
			continue
		}
		perColumn = appendConditions(perColumn, t.col.Ref(), term, t.search.Regex && validRegex(term))
	}

	if len(global) > 0 {
		q.Filters = append(q.Filters, global)
	}
	if len(perColumn) > 0 {
		q.Filters = append(q.Filters, perColumn)
	}
	return nil
}

func appendConditions(g ConditionGroup, ref Ref, term string, regex bool) ConditionGroup {
	g = append(g, Condition{Ref: ref, Op: OpContains, Value: term})
	if regex {
		g = append(g, Condition{Ref: ref, Op: OpRegex, Value: term})
	}
	return g
}

// validRegex reports whether term compiles; invalid patterns only drop the
// regex condition.
func validRegex(term string) bool {
	_, err := regexp.Compile(term)
	return err == nil
}

type orderedSet struct {
	items []string
	seen  map[string]bool
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{seen: map[string]bool{}}
	for _, it := range items {
		s.add(it)
	}
	return s
}

func (s *orderedSet) add(item string) {
	item = strings.TrimSpace(item)
	if item == "" || s.seen[item] {
		return
	}
	s.seen[item] = true
	s.items = append(s.items, item)
}
