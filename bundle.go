package datatables

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gnemet/datatables/assets"
)

// ConfigBundle is the resolved configuration of one table definition.
type ConfigBundle struct {
	Name        string
	ContentHash string
	Columns     *Columns
	Options     *Options
	Query       *QueryDefaults
	Assets      assets.Spec

	// Renderer formats rows; nil means DefaultRenderer. It is not cached.
	Renderer RowRenderer
}

func newConfigBundle(name string, schema *Schema, table string) (*ConfigBundle, error) {
	cols, err := NewColumns(schema, table)
	if err != nil {
		return nil, err
	}
	return &ConfigBundle{
		Name:    name,
		Columns: cols,
		Options: NewOptions(),
		Query:   &QueryDefaults{},
		Assets:  assets.DefaultSpec(),
	}, nil
}

func (b *ConfigBundle) AddDatabaseColumn(ref string) (*Column, error) {
	return b.Columns.AddDatabaseColumn(ref)
}

func (b *ConfigBundle) AddComputedColumn(name, expression string) (*Column, error) {
	return b.Columns.AddComputedColumn(name, expression)
}

func (b *ConfigBundle) AddNonDatabaseColumn(label string) (*Column, error) {
	return b.Columns.AddNonDatabaseColumn(label)
}

// SetAssets replaces the asset selection.
func (b *ConfigBundle) SetAssets(spec assets.Spec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	b.Assets = spec
	return nil
}

func (b *ConfigBundle) SetTheme(theme assets.Theme, loadLibrary bool) error {
	s := b.Assets
	spec, err := assets.NewSpec(s.Version, theme, loadLibrary, s.JQuery, s.Plugins...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	b.Assets = spec
	return nil
}

func (b *ConfigBundle) SetJQuery(v assets.JQuery) error {
	s := b.Assets
	spec, err := assets.NewSpec(s.Version, s.Theme, s.LoadLibrary, v, s.Plugins...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	b.Assets = spec
	return nil
}

// EnablePlugins adds plugins to the asset selection.
func (b *ConfigBundle) EnablePlugins(ids ...string) error {
	spec, err := b.Assets.WithPlugins(ids...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	b.Assets = spec
	return nil
}

// finalize derives settings implied by others: select options need the
// select plugin.
func (b *ConfigBundle) finalize() error {
	if b.Options.Select != nil && !b.Assets.Has("select") {
		return b.EnablePlugins("select")
	}
	return nil
}

// Validate checks the bundle as a whole.
func (b *ConfigBundle) Validate() error {
	if b.Columns == nil || b.Columns.Len() == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidConfiguration, b.Name)
	}
	if err := b.Options.Validate(b.Columns); err != nil {
		return err
	}
	if err := b.Query.validate(b.Columns); err != nil {
		return err
	}
	if err := b.Assets.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	return nil
}

// RowRenderer returns the renderer for the bundle's rows.
func (b *ConfigBundle) RowRenderer() RowRenderer {
	if b.Renderer != nil {
		return b.Renderer
	}
	return DefaultRenderer{DateLayout: b.Options.DateFormat}
}

// clone copies the top level so that pieces can be replaced without
// touching the original.
func (b *ConfigBundle) clone() *ConfigBundle {
	c := *b
	return &c
}

// bundleEnvelope is the cached form of a bundle.
type bundleEnvelope struct {
	Name        string         `json:"name"`
	ContentHash string         `json:"contentHash"`
	Columns     *Columns       `json:"columns"`
	Options     *Options       `json:"options"`
	DateFormat  string         `json:"dateFormat,omitempty"`
	Query       *QueryDefaults `json:"query"`
	Assets      assets.Spec    `json:"assets"`
}

func (b *ConfigBundle) encode() ([]byte, error) {
	return json.Marshal(bundleEnvelope{
		Name:        b.Name,
		ContentHash: b.ContentHash,
		Columns:     b.Columns,
		Options:     b.Options,
		DateFormat:  b.Options.DateFormat,
		Query:       b.Query,
		Assets:      b.Assets,
	})
}

func decodeBundle(data []byte, schema *Schema) (*ConfigBundle, error) {
	var env bundleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if env.Columns == nil || env.Options == nil || env.Query == nil {
		return nil, fmt.Errorf("decode bundle: incomplete envelope")
	}
	if err := env.Columns.Bind(schema); err != nil {
		return nil, err
	}
	env.Options.DateFormat = env.DateFormat
	normalizeArgs(env.Query)
	return &ConfigBundle{
		Name:        env.Name,
		ContentHash: env.ContentHash,
		Columns:     env.Columns,
		Options:     env.Options,
		Query:       env.Query,
		Assets:      env.Assets,
	}, nil
}

// normalizeArgs turns JSON numbers that hold whole values back into
// integers so that clause arguments bind as they did before caching.
func normalizeArgs(d *QueryDefaults) {
	fix := func(args []any) {
		for i, a := range args {
			if f, ok := a.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				args[i] = int64(f)
			}
		}
	}
	for i := range d.Where {
		fix(d.Where[i].Args)
	}
	for i := range d.Joins {
		fix(d.Joins[i].Args)
	}
}
