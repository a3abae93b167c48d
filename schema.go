package datatables

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gnemet/datatables/cache"
	"gopkg.in/yaml.v3"
)

// AssociationKind describes how an associated table relates to its owner.
type AssociationKind string

const (
	AssocNone AssociationKind = ""
	BelongsTo AssociationKind = "belongsTo"
	HasOne    AssociationKind = "hasOne"
	HasMany   AssociationKind = "hasMany"
)

// Field is one column of a backing table.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Association links a table to another one, one hop away.
type Association struct {
	Name       string          `json:"name" yaml:"name"` // alias used in column refs
	Kind       AssociationKind `json:"kind" yaml:"kind"`
	Target     string          `json:"target" yaml:"target"`
	ForeignKey string          `json:"foreign_key" yaml:"foreign_key"`
	BindingKey string          `json:"binding_key,omitempty" yaml:"binding_key"`
}

// Table describes one backing table.
type Table struct {
	Name         string        `json:"name" yaml:"name"`   // alias used in column refs, e.g. "Users"
	SQLName      string        `json:"table" yaml:"table"` // name in the database, e.g. "users"
	PrimaryKey   string        `json:"primary_key" yaml:"primary_key"`
	Fields       []Field       `json:"fields" yaml:"fields"`
	Associations []Association `json:"associations,omitempty" yaml:"associations"`
}

// Field looks up a field by name.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Association looks up an association by alias.
func (t *Table) Association(name string) (Association, bool) {
	for _, a := range t.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// Schema is the backing-store table graph the column registry validates
// against.
type Schema struct {
	tables      map[string]*Table
	fingerprint string
}

// NewSchema builds a schema from table descriptions and checks that every
// association points at a known table.
func NewSchema(tables ...*Table) (*Schema, error) {
	s := &Schema{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil || t.Name == "" {
			return nil, fmt.Errorf("%w: table without name", ErrInvalidConfiguration)
		}
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("%w: table %s declared twice", ErrInvalidConfiguration, t.Name)
		}
		if t.SQLName == "" {
			t.SQLName = t.Name
		}
		if t.PrimaryKey == "" {
			t.PrimaryKey = "id"
		}
		s.tables[t.Name] = t
	}
	for _, t := range s.tables {
		for i, a := range t.Associations {
			target, ok := s.tables[a.Target]
			if !ok {
				return nil, fmt.Errorf("%w: association %s.%s targets unknown table %s",
					ErrInvalidConfiguration, t.Name, a.Name, a.Target)
			}
			switch a.Kind {
			case BelongsTo:
				if a.BindingKey == "" {
					t.Associations[i].BindingKey = target.PrimaryKey
				}
			case HasOne, HasMany:
				if a.BindingKey == "" {
					t.Associations[i].BindingKey = t.PrimaryKey
				}
			default:
				return nil, fmt.Errorf("%w: association %s.%s has unknown kind %q",
					ErrInvalidConfiguration, t.Name, a.Name, a.Kind)
			}
			if a.ForeignKey == "" {
				return nil, fmt.Errorf("%w: association %s.%s needs a foreign key",
					ErrInvalidConfiguration, t.Name, a.Name)
			}
		}
	}
	data, err := json.Marshal(s.tables)
	if err != nil {
		return nil, fmt.Errorf("fingerprint schema: %w", err)
	}
	s.fingerprint = cache.Key("schema", string(data))
	return s, nil
}

// Fingerprint changes whenever a table, field or association changes.
func (s *Schema) Fingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}

// Table returns the table registered under name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Tables returns the table names in sorted order.
func (s *Schema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolved is the outcome of resolving a "Table.field" reference.
type resolved struct {
	table string
	field Field
	assoc *Association // nil for the primary table
}

// resolveTable resolves a table part against the primary table or one of
// its associations.
func (s *Schema) resolveTable(primary, name string) (*Table, *Association, error) {
	root, ok := s.tables[primary]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown primary table %s", ErrInvalidArgument, primary)
	}
	if name == primary {
		return root, nil, nil
	}
	a, ok := root.Association(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s is neither %s nor one of its associations", ErrInvalidArgument, name, primary)
	}
	return s.tables[a.Target], &a, nil
}

func (s *Schema) resolve(primary, ref string) (resolved, error) {
	parts := strings.Split(ref, ".")
	var tableName, fieldName string
	switch len(parts) {
	case 1:
		tableName, fieldName = primary, parts[0]
	case 2:
		tableName, fieldName = parts[0], parts[1]
	default:
		return resolved{}, fmt.Errorf("%w: %q has more than one dot", ErrInvalidArgument, ref)
	}
	if tableName == "" || fieldName == "" {
		return resolved{}, fmt.Errorf("%w: %q is not a field reference", ErrInvalidArgument, ref)
	}
	t, assoc, err := s.resolveTable(primary, tableName)
	if err != nil {
		return resolved{}, err
	}
	f, ok := t.Field(fieldName)
	if !ok {
		return resolved{}, fmt.Errorf("%w: %s has no field %s", ErrInvalidArgument, tableName, fieldName)
	}
	return resolved{table: tableName, field: f, assoc: assoc}, nil
}

type schemaCatalog struct {
	Tables []*Table `yaml:"tables"`
}

// LoadSchema reads a YAML (or JSON) schema catalog from disk.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchema(data)
}

// ParseSchema validates a schema catalog document and builds the schema.
func ParseSchema(data []byte) (*Schema, error) {
	if err := ValidateSchemaDocument(data); err != nil {
		return nil, err
	}
	var cat schemaCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("datatables: parse schema: %w", err)
	}
	return NewSchema(cat.Tables...)
}

// IntrospectPostgres builds a schema from information_schema. Table names
// double as aliases, foreign keys become belongsTo associations on the
// referencing table and hasMany associations on the referenced one.
func IntrospectPostgres(ctx context.Context, db *sql.DB, schemaName string) (*Schema, error) {
	tables := map[string]*Table{}

	rows, err := db.QueryContext(ctx, `SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, err
		}
		t, ok := tables[table]
		if !ok {
			t = &Table{Name: table, SQLName: table}
			tables[table] = t
		}
		t.Fields = append(t.Fields, Field{Name: column, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pkRows, err := db.QueryContext(ctx, `SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var table, column string
		if err := pkRows.Scan(&table, &column); err != nil {
			return nil, err
		}
		if t, ok := tables[table]; ok && t.PrimaryKey == "" {
			t.PrimaryKey = column
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, err
	}

	fkRows, err := db.QueryContext(ctx, `SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.column_name`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var from, fromCol, to, toCol string
		if err := fkRows.Scan(&from, &fromCol, &to, &toCol); err != nil {
			return nil, err
		}
		src, okSrc := tables[from]
		dst, okDst := tables[to]
		if !okSrc || !okDst || from == to {
			continue
		}
		if _, taken := src.Association(to); !taken {
			src.Associations = append(src.Associations, Association{
				Name: to, Kind: BelongsTo, Target: to, ForeignKey: fromCol, BindingKey: toCol,
			})
		}
		if _, taken := dst.Association(from); !taken {
			dst.Associations = append(dst.Associations, Association{
				Name: from, Kind: HasMany, Target: from, ForeignKey: fromCol, BindingKey: toCol,
			})
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, err
	}

	list := make([]*Table, 0, len(tables))
	for _, t := range tables {
		list = append(list, t)
	}
	return NewSchema(list...)
}
