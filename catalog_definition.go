package datatables

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnemet/datatables/assets"
	"gopkg.in/yaml.v3"
)

// CatalogDefinition is a table definition read from a YAML or JSON
// catalog file instead of written in Go.
type CatalogDefinition struct {
	doc  definitionDocument
	hash string
	Path string
}

type definitionDocument struct {
	Name     string           `yaml:"name"`
	Revision string           `yaml:"revision"`
	Table    string           `yaml:"table"`
	Columns  []columnDocument `yaml:"columns"`
	Options  *optionsDocument `yaml:"options"`
	Query    *queryDocument   `yaml:"query"`
	Assets   *assetsDocument  `yaml:"assets"`
}

type columnDocument struct {
	Field      string `yaml:"field"`
	Label      string `yaml:"label"`
	Computed   string `yaml:"computed"`
	Expression string `yaml:"expression"`

	Title          string `yaml:"title"`
	Visible        *bool  `yaml:"visible"`
	Orderable      *bool  `yaml:"orderable"`
	Searchable     *bool  `yaml:"searchable"`
	Width          string `yaml:"width"`
	Type           string `yaml:"type"`
	CellType       string `yaml:"cell_type"`
	ClassName      string `yaml:"class_name"`
	ContentPadding string `yaml:"content_padding"`
	Default        string `yaml:"default"`
}

type optionsDocument struct {
	PageLength int    `yaml:"page_length"`
	LengthMenu []int  `yaml:"length_menu"`
	PagingType string `yaml:"paging_type"`
	AjaxType   string `yaml:"ajax_type"`
	Dom        string `yaml:"dom"`
	RowID      string `yaml:"row_id"`
	StateSave  *bool  `yaml:"state_save"`
	ScrollX    *bool  `yaml:"scroll_x"`
	ScrollY    string `yaml:"scroll_y"`
	DateFormat string `yaml:"date_format"`
	Order      []struct {
		Column int    `yaml:"column"`
		Dir    string `yaml:"dir"`
	} `yaml:"order"`
	Language map[string]string `yaml:"language"`
	Select   *struct {
		Style string `yaml:"style"`
		Items string `yaml:"items"`
		Info  *bool  `yaml:"info"`
	} `yaml:"select"`
}

type queryDocument struct {
	Contain []string `yaml:"contain"`
	Where   []struct {
		SQL  string `yaml:"sql"`
		Args []any  `yaml:"args"`
	} `yaml:"where"`
	Order []struct {
		Field string `yaml:"field"`
		Dir   string `yaml:"dir"`
	} `yaml:"order"`
}

type assetsDocument struct {
	Version string   `yaml:"version"`
	Theme   string   `yaml:"theme"`
	Library bool     `yaml:"library"`
	JQuery  string   `yaml:"jquery"`
	Plugins []string `yaml:"plugins"`
}

// ParseCatalogDefinition validates a definition document against the
// definition JSON Schema and decodes it.
func ParseCatalogDefinition(data []byte) (*CatalogDefinition, error) {
	if err := ValidateDefinitionDocument(data); err != nil {
		return nil, err
	}
	var doc definitionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("datatables: parse definition: %w", err)
	}
	sum := sha256.Sum256(data)
	return &CatalogDefinition{doc: doc, hash: hex.EncodeToString(sum[:])}, nil
}

// LoadCatalogDefinition reads one definition file.
func LoadCatalogDefinition(path string) (*CatalogDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseCatalogDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// LoadCatalogDefinitions reads every .yaml, .yml and .json file of dir in
// name order.
func LoadCatalogDefinitions(dir string) ([]*CatalogDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*CatalogDefinition, 0, len(names))
	for _, n := range names {
		d, err := LoadCatalogDefinition(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (d *CatalogDefinition) Name() string     { return d.doc.Name }
func (d *CatalogDefinition) Table() string    { return d.doc.Table }
func (d *CatalogDefinition) Revision() string { return d.doc.Revision }

// Identity covers the whole document, so any edit invalidates the cache.
func (d *CatalogDefinition) Identity() string {
	return "catalog:" + d.doc.Name + ":" + d.hash
}

func (d *CatalogDefinition) Configure(b *ConfigBundle) error {
	for i, cd := range d.doc.Columns {
		if err := configureColumn(b, cd); err != nil {
			return fmt.Errorf("columns[%d]: %w", i, err)
		}
	}
	if d.doc.Options != nil {
		if err := configureOptions(b.Options, d.doc.Options); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}
	if d.doc.Query != nil {
		if err := configureQuery(b, d.doc.Query); err != nil {
			return fmt.Errorf("query: %w", err)
		}
	}
	if a := d.doc.Assets; a != nil {
		theme := assets.Theme(a.Theme)
		if theme == "" {
			theme = assets.ThemeBase
		}
		spec, err := assets.NewSpec(a.Version, theme, a.Library, assets.JQuery(a.JQuery), a.Plugins...)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		b.Assets = spec
	}
	return nil
}

func configureColumn(b *ConfigBundle, cd columnDocument) error {
	var (
		col *Column
		err error
	)
	switch {
	case cd.Field != "":
		col, err = b.AddDatabaseColumn(cd.Field)
	case cd.Computed != "":
		col, err = b.AddComputedColumn(cd.Computed, cd.Expression)
	default:
		col, err = b.AddNonDatabaseColumn(cd.Label)
	}
	if err != nil {
		return err
	}

	if cd.Title != "" {
		col.Title = cd.Title
	}
	if cd.Visible != nil {
		col.Visible = *cd.Visible
	}
	if cd.Orderable != nil {
		col.Orderable = *cd.Orderable
	}
	if cd.Searchable != nil {
		col.Searchable = *cd.Searchable
	}
	if cd.Type != "" {
		if err := col.SetType(DisplayType(cd.Type)); err != nil {
			return err
		}
	}
	if cd.CellType != "" {
		if err := col.SetCellType(cd.CellType); err != nil {
			return err
		}
	}
	col.Width = cd.Width
	col.ClassName = cd.ClassName
	col.ContentPadding = cd.ContentPadding
	col.DefaultContent = cd.Default
	return nil
}

func configureOptions(o *Options, od *optionsDocument) error {
	if od.PageLength > 0 {
		if err := o.SetPageLength(od.PageLength); err != nil {
			return err
		}
	}
	if len(od.LengthMenu) > 0 {
		if err := o.SetLengthMenu(od.LengthMenu...); err != nil {
			return err
		}
	}
	if od.PagingType != "" {
		if err := o.SetPagingType(od.PagingType); err != nil {
			return err
		}
	}
	if od.AjaxType != "" {
		if err := o.SetAjaxType(od.AjaxType); err != nil {
			return err
		}
	}
	if od.StateSave != nil {
		o.SetStateSave(*od.StateSave)
	}
	if od.ScrollX != nil {
		o.SetScrollX(*od.ScrollX)
	}
	o.SetScrollY(od.ScrollY)
	o.SetDom(od.Dom)
	o.SetRowID(od.RowID)
	o.DateFormat = od.DateFormat

	for _, ord := range od.Order {
		if err := o.AddOrder(ord.Column, ord.Dir); err != nil {
			return err
		}
	}
	if len(od.Language) > 0 {
		lang, err := decodeLanguage(od.Language)
		if err != nil {
			return err
		}
		o.SetLanguage(lang)
	}
	if s := od.Select; s != nil {
		if s.Style != "" {
			if err := o.SetSelectStyle(s.Style); err != nil {
				return err
			}
		}
		if s.Items != "" {
			if err := o.SetSelectItems(s.Items); err != nil {
				return err
			}
		}
		if s.Info != nil {
			o.SetSelectInfo(*s.Info)
		}
		if o.Select == nil {
			o.Select = &Select{}
		}
	}
	return nil
}

// decodeLanguage maps widget language keys (emptyTable, zeroRecords...)
// onto Language. Unknown keys are an error.
func decodeLanguage(m map[string]string) (Language, error) {
	var lang Language
	data, err := json.Marshal(m)
	if err != nil {
		return lang, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lang); err != nil {
		return lang, fmt.Errorf("%w: language: %v", ErrInvalidConfiguration, err)
	}
	return lang, nil
}

func configureQuery(b *ConfigBundle, qd *queryDocument) error {
	b.Query.AddContain(qd.Contain...)
	for _, w := range qd.Where {
		b.Query.AddWhere(w.SQL, w.Args...)
	}
	for _, ord := range qd.Order {
		dir, err := ParseDirection(ord.Dir)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		field := ord.Field
		if !strings.Contains(field, ".") {
			field = b.Columns.Primary() + "." + field
		}
		b.Query.AddOrder(field, dir)
	}
	return nil
}
