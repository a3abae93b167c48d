package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"sort"

	"github.com/gnemet/datatables/cache"
)

// AssetNotFoundError reports a catalog entry whose file is missing from
// the asset root.
type AssetNotFoundError struct {
	Path string
	Err  error
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("assets: file not found: %s", e.Path)
}

func (e *AssetNotFoundError) Unwrap() error { return e.Err }

// Selector picks the catalog entries for a spec and concatenates them into
// one bundle.
type Selector struct {
	catalog *Catalog
	root    fs.FS
	store   cache.Store
	logger  *slog.Logger
}

type Option func(*Selector)

// WithCatalog replaces the default catalog.
func WithCatalog(c *Catalog) Option {
	return func(s *Selector) { s.catalog = c }
}

func WithCache(store cache.Store) Option {
	return func(s *Selector) { s.store = store }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// NewSelector reads asset files from root, laid out as <version>/<path>.
func NewSelector(root fs.FS, opts ...Option) *Selector {
	s := &Selector{
		catalog: DefaultCatalog(),
		root:    root,
		store:   cache.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the catalog the selector folds over.
func (s *Selector) Catalog() *Catalog { return s.catalog }

// ParseQuery is the package ParseQuery with plugins checked against the
// selector's catalog.
func (s *Selector) ParseQuery(v url.Values) (Spec, error) {
	return parseQuery(v, s.catalog)
}

// CacheKey is the store key of the bundle for spec and kind.
func CacheKey(spec Spec, kind Kind) string {
	return cache.Key("asset", string(kind), spec.Encode())
}

// Files returns the selected entries of a bundle in output order.
func (s *Selector) Files(spec Spec, kind Kind) []Entry {
	selected := map[int]Entry{}
	merge := func(entries []Entry) {
		for _, e := range entries {
			if _, taken := selected[e.Priority]; !taken {
				selected[e.Priority] = e
			}
		}
	}

	c := s.catalog
	merge(c.Base[kind][spec.Theme])
	if spec.LoadLibrary {
		merge(c.Library[kind][spec.Theme])
	}
	if kind == Script && spec.JQuery != JQueryNone {
		merge(c.JQuery[spec.JQuery])
	}
	for _, id := range spec.Plugins {
		merge(c.PluginCore[kind][id])
		merge(c.PluginTheme[kind][id][spec.Theme])
	}

	files := make([]Entry, 0, len(selected))
	for _, e := range selected {
		files = append(files, e)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Priority < files[j].Priority })
	return files
}

// Resolve returns the bundle for spec and kind, from the cache when it is
// there. A missing file fails the whole bundle and nothing is cached.
func (s *Selector) Resolve(ctx context.Context, spec Spec, kind Kind) ([]byte, error) {
	if err := spec.ValidateFor(s.catalog); err != nil {
		return nil, err
	}
	key := CacheKey(spec, kind)

	cached, ok, err := s.store.Read(ctx, key)
	if err != nil {
		s.logger.Warn("asset cache read failed", "key", key, "error", err)
	} else if ok {
		return cached, nil
	}

	var buf bytes.Buffer
	for _, e := range s.Files(spec, kind) {
		p := path.Join(spec.Version, e.Path)
		data, err := fs.ReadFile(s.root, p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &AssetNotFoundError{Path: p, Err: err}
			}
			return nil, fmt.Errorf("assets: read %s: %w", p, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
		if kind == Script {
			buf.WriteString(";\n")
		}
	}

	bundle := buf.Bytes()
	if err := s.store.Save(ctx, key, bundle); err != nil {
		s.logger.Warn("asset cache save failed", "key", key, "error", err)
	}
	s.logger.Debug("asset bundle built", "kind", kind, "theme", spec.Theme, "plugins", spec.Plugins, "bytes", len(bundle))
	return bundle, nil
}
