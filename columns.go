package datatables

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DisplayType is the widget's column type, used for client-side type
// detection and by the default cell renderer.
type DisplayType string

const (
	TypeDate          DisplayType = "date"
	TypeNumeric       DisplayType = "num"
	TypeNumericFormat DisplayType = "num-fmt"
	TypeHTML          DisplayType = "html"
	TypeHTMLNumFormat DisplayType = "html-num-fmt"
	TypeString        DisplayType = "string"
)

func (t DisplayType) valid() bool {
	switch t {
	case TypeDate, TypeNumeric, TypeNumericFormat, TypeHTML, TypeHTMLNumFormat, TypeString:
		return true
	}
	return false
}

// displayTypeFor maps a backing-store type onto a display type.
func displayTypeFor(schemaType string) DisplayType {
	t := strings.ToLower(strings.TrimSpace(schemaType))
	switch {
	case t == "date", t == "datetime", t == "time", t == "timestamp",
		strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "time "), strings.HasPrefix(t, "datetime"):
		return TypeDate
	case t == "money":
		return TypeNumericFormat
	case t == "integer", t == "int", t == "smallint", t == "bigint", t == "tinyint",
		t == "smallinteger", t == "biginteger", t == "tinyinteger", t == "serial", t == "bigserial",
		t == "float", t == "real", t == "double", t == "double precision",
		t == "decimal", t == "numeric", strings.HasPrefix(t, "numeric("), strings.HasPrefix(t, "decimal("):
		return TypeNumeric
	case t == "html":
		return TypeHTML
	}
	return TypeString
}

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is one column of a table definition.
type Column struct {
	Name        string          `json:"name"`
	Database    bool            `json:"database"`
	Table       string          `json:"table,omitempty"`
	Field       string          `json:"field,omitempty"`
	Expression  string          `json:"expression,omitempty"`
	Association AssociationKind `json:"association,omitempty"`
	SchemaType  string          `json:"schemaType,omitempty"`
	Type        DisplayType     `json:"type"`
	Index       int             `json:"index"`

	Title          string `json:"title,omitempty"`
	Visible        bool   `json:"visible"`
	Orderable      bool   `json:"orderable"`
	Searchable     bool   `json:"searchable"`
	Width          string `json:"width,omitempty"`
	CellType       string `json:"cellType,omitempty"`
	ClassName      string `json:"className,omitempty"`
	ContentPadding string `json:"contentPadding,omitempty"`
	DefaultContent string `json:"defaultContent,omitempty"`
}

// SetType overrides the inferred display type.
func (c *Column) SetType(t DisplayType) error {
	if !t.valid() {
		return fmt.Errorf("%w: column %s: unknown type %q", ErrInvalidConfiguration, c.Name, t)
	}
	c.Type = t
	return nil
}

// SetCellType sets the HTML cell element, td or th.
func (c *Column) SetCellType(cellType string) error {
	if cellType != "td" && cellType != "th" {
		return fmt.Errorf("%w: column %s: cell type must be td or th, got %q", ErrInvalidConfiguration, c.Name, cellType)
	}
	c.CellType = cellType
	return nil
}

// StoreBacked reports whether the column maps onto a single value of the
// row fetched from the backing store, so it can be ordered and searched
// there.
func (c *Column) StoreBacked() bool {
	return c.Database && c.Association != HasMany
}

// Ref returns the backing-store reference of a database column.
func (c *Column) Ref() Ref {
	return Ref{Table: c.Table, Field: c.Field, Expr: c.Expression}
}

// Columns is the ordered set of named columns of one table definition. It
// keeps the name and index addressing schemes in sync: indexes are always
// a dense 0..N-1 permutation.
type Columns struct {
	schema  *Schema
	primary string
	list    []*Column
	byName  map[string]int
}

// NewColumns creates an empty registry for a definition whose primary
// table is primary.
func NewColumns(schema *Schema, primary string) (*Columns, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: schema required", ErrInvalidConfiguration)
	}
	if _, ok := schema.Table(primary); !ok {
		return nil, fmt.Errorf("%w: unknown primary table %s", ErrInvalidConfiguration, primary)
	}
	return &Columns{schema: schema, primary: primary, byName: map[string]int{}}, nil
}

func (c *Columns) Schema() *Schema { return c.schema }
func (c *Columns) Primary() string { return c.primary }
func (c *Columns) Len() int        { return len(c.list) }

// All returns the columns in index order. The slice is a copy; the columns
// are not.
func (c *Columns) All() []*Column {
	out := make([]*Column, len(c.list))
	copy(out, c.list)
	return out
}

// AddDatabaseColumn registers a backing-store column. ref is either
// "field" on the primary table or "Table.field" where Table is the primary
// table or one of its associations.
func (c *Columns) AddDatabaseColumn(ref string) (*Column, error) {
	res, err := c.schema.resolve(c.primary, ref)
	if err != nil {
		return nil, err
	}
	col := &Column{
		Name:       res.table + "." + res.field.Name,
		Database:   true,
		Table:      res.table,
		Field:      res.field.Name,
		SchemaType: res.field.Type,
		Type:       displayTypeFor(res.field.Type),
		Title:      res.field.Name,
		Visible:    true,
		Orderable:  true,
		Searchable: true,
	}
	if res.assoc != nil {
		col.Association = res.assoc.Kind
	}
	if col.Association == HasMany {
		col.Orderable = false
		col.Searchable = false
	}
	return col, c.add(col)
}

// AddComputedColumn registers a database column backed by an SQL
// expression, selected as "expression AS name". The table part of name
// must resolve; the field part is free.
func (c *Columns) AddComputedColumn(name, expression string) (*Column, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: computed column %s needs an expression", ErrInvalidArgument, name)
	}
	parts := strings.Split(name, ".")
	if len(parts) != 2 || !labelPattern.MatchString(parts[1]) {
		return nil, fmt.Errorf("%w: computed column name %q must be Table.alias", ErrInvalidArgument, name)
	}
	_, assoc, err := c.schema.resolveTable(c.primary, parts[0])
	if err != nil {
		return nil, err
	}
	if assoc != nil && assoc.Kind == HasMany {
		return nil, fmt.Errorf("%w: computed column %s cannot live on a hasMany association", ErrInvalidArgument, name)
	}
	col := &Column{
		Name:       name,
		Database:   true,
		Table:      parts[0],
		Field:      parts[1],
		Expression: expression,
		Type:       TypeString,
		Title:      parts[1],
		Visible:    true,
		Orderable:  true,
		Searchable: true,
	}
	if assoc != nil {
		col.Association = assoc.Kind
	}
	return col, c.add(col)
}

// AddNonDatabaseColumn registers a virtual column whose content is produced
// by the row renderer.
func (c *Columns) AddNonDatabaseColumn(label string) (*Column, error) {
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("%w: label %q must match %s", ErrInvalidArgument, label, labelPattern)
	}
	col := &Column{
		Name:    label,
		Type:    TypeHTML,
		Title:   label,
		Visible: true,
	}
	return col, c.add(col)
}

func (c *Columns) add(col *Column) error {
	if _, dup := c.byName[col.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, col.Name)
	}
	col.Index = len(c.list)
	c.list = append(c.list, col)
	c.byName[col.Name] = col.Index
	return nil
}

// Get returns the column registered under name.
func (c *Columns) Get(name string) (*Column, error) {
	i, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c.list[i], nil
}

func (c *Columns) ByIndex(i int) (*Column, error) {
	if i < 0 || i >= len(c.list) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, i, len(c.list))
	}
	return c.list[i], nil
}

func (c *Columns) IndexOf(name string) (int, error) {
	i, ok := c.byName[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return i, nil
}

func (c *Columns) NameAt(i int) (string, error) {
	col, err := c.ByIndex(i)
	if err != nil {
		return "", err
	}
	return col.Name, nil
}

// Delete removes a column and compacts the indexes after it.
func (c *Columns) Delete(name string) error {
	i, err := c.IndexOf(name)
	if err != nil {
		return err
	}
	c.list = append(c.list[:i], c.list[i+1:]...)
	delete(c.byName, name)
	c.reindex(i)
	return nil
}

// Move places the named column at newIndex, shifting the columns in
// between by one.
func (c *Columns) Move(name string, newIndex int) error {
	from, err := c.IndexOf(name)
	if err != nil {
		return err
	}
	if newIndex < 0 || newIndex >= len(c.list) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, newIndex, len(c.list))
	}
	if from == newIndex {
		return nil
	}
	col := c.list[from]
	c.list = append(c.list[:from], c.list[from+1:]...)
	c.list = append(c.list[:newIndex], append([]*Column{col}, c.list[newIndex:]...)...)
	c.reindex(min(from, newIndex))
	return nil
}

func (c *Columns) reindex(start int) {
	for i := start; i < len(c.list); i++ {
		c.list[i].Index = i
		c.byName[c.list[i].Name] = i
	}
}

type columnsJSON struct {
	Primary string    `json:"primary"`
	Columns []*Column `json:"columns"`
}

func (c *Columns) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnsJSON{Primary: c.primary, Columns: c.list})
}

// UnmarshalJSON restores a registry. The schema is not part of the
// encoding; call Bind before using the result.
func (c *Columns) UnmarshalJSON(data []byte) error {
	var raw columnsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.primary = raw.Primary
	c.list = raw.Columns
	c.byName = make(map[string]int, len(raw.Columns))
	for i, col := range c.list {
		if _, dup := c.byName[col.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, col.Name)
		}
		c.byName[col.Name] = i
	}
	c.reindex(0)
	return nil
}

// Bind attaches the schema a decoded registry was built against. Every
// database column must still resolve in it.
func (c *Columns) Bind(schema *Schema) error {
	if _, ok := schema.Table(c.primary); !ok {
		return fmt.Errorf("%w: unknown primary table %s", ErrInvalidConfiguration, c.primary)
	}
	for _, col := range c.list {
		if !col.Database || col.Expression != "" {
			continue
		}
		if _, err := schema.resolve(c.primary, col.Table+"."+col.Field); err != nil {
			return fmt.Errorf("%w: column %s: %v", ErrInvalidConfiguration, col.Name, err)
		}
	}
	c.schema = schema
	return nil
}
