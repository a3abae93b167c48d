package datatables

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gnemet/datatables/cache"
	"github.com/gnemet/datatables/session"
)

// LibraryVersion is mixed into every content hash, so upgrading the module
// discards bundles cached by older versions.
const LibraryVersion = "1.4.0"

// Session override pieces.
const (
	SessionColumns = "Columns"
	SessionOptions = "Options"
	SessionQuery   = "Query"
)

// SessionKey is the session key under which a page stores a temporary
// override of one piece of a table's bundle.
func SessionKey(name, piece, url string) string {
	return "DataTables." + name + "." + piece + "." + url
}

// Builder resolves definition references to configuration bundles,
// caching them in a store.
type Builder struct {
	registry *Registry
	schema   *Schema
	store    cache.Store
	logger   *slog.Logger
	version  string
}

type BuilderOption func(*Builder)

func WithCache(s cache.Store) BuilderOption {
	return func(b *Builder) { b.store = s }
}

func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithLibraryVersion overrides LibraryVersion in content hashes.
func WithLibraryVersion(v string) BuilderOption {
	return func(b *Builder) { b.version = v }
}

func NewBuilder(registry *Registry, schema *Schema, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry: registry,
		schema:   schema,
		store:    cache.Nop{},
		logger:   slog.Default(),
		version:  LibraryVersion,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Registry() *Registry { return b.registry }
func (b *Builder) Schema() *Schema     { return b.schema }

type getOptions struct {
	bypass  bool
	session session.Reader
	url     string
}

type GetOption func(*getOptions)

// BypassCache configures the bundle fresh and leaves the cache untouched.
func BypassCache() GetOption {
	return func(o *getOptions) { o.bypass = true }
}

// WithSession applies the overrides a page stored in the session for url.
func WithSession(r session.Reader, url string) GetOption {
	return func(o *getOptions) {
		o.session = r
		o.url = url
	}
}

// ContentHash is the hash a cached bundle of d must carry to be reused. It
// covers the schema, so a bundle never outlives the tables it was built for.
func (b *Builder) ContentHash(d Definition) string {
	return cache.Key("definition", identity(d), b.version, b.schema.Fingerprint())
}

func (b *Builder) cacheKey(d Definition) string {
	return cache.Key("bundle", b.registry.Namespace(), d.Name())
}

// GetConfigBundle returns the bundle of the definition ref points at.
// Resolution and configuration failures are *ConfigurationError values.
func (b *Builder) GetConfigBundle(ctx context.Context, ref string, opts ...GetOption) (*ConfigBundle, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	def, err := b.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	hash := b.ContentHash(def)
	key := b.cacheKey(def)

	var bundle *ConfigBundle
	if !o.bypass {
		bundle = b.cached(ctx, key, hash)
	}
	if bundle == nil {
		bundle, err = b.configure(def, hash)
		if err != nil {
			return nil, &ConfigurationError{Ref: ref, Err: err}
		}
		if !o.bypass {
			b.save(ctx, key, bundle)
		}
	}

	if r, ok := def.(RowRenderer); ok {
		bundle.Renderer = r
	}

	if o.session != nil {
		bundle, err = b.overlay(bundle, o.session, o.url)
		if err != nil {
			return nil, &ConfigurationError{Ref: ref, Err: err}
		}
	}
	return bundle, nil
}

func (b *Builder) cached(ctx context.Context, key, hash string) *ConfigBundle {
	data, ok, err := b.store.Read(ctx, key)
	if err != nil {
		b.logger.Warn("bundle cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	bundle, err := decodeBundle(data, b.schema)
	if err != nil {
		b.logger.Warn("discarding undecodable cached bundle", "key", key, "error", err)
		return nil
	}
	if bundle.ContentHash != hash {
		b.logger.Debug("cached bundle is stale", "name", bundle.Name)
		return nil
	}
	return bundle
}

func (b *Builder) save(ctx context.Context, key string, bundle *ConfigBundle) {
	data, err := bundle.encode()
	if err != nil {
		b.logger.Warn("bundle encode failed", "name", bundle.Name, "error", err)
		return
	}
	if err := b.store.Save(ctx, key, data); err != nil {
		b.logger.Warn("bundle cache save failed", "name", bundle.Name, "error", err)
	}
}

func (b *Builder) configure(def Definition, hash string) (*ConfigBundle, error) {
	bundle, err := newConfigBundle(def.Name(), b.schema, def.Table())
	if err != nil {
		return nil, err
	}
	bundle.ContentHash = hash
	if err := def.Configure(bundle); err != nil {
		return nil, err
	}
	if err := bundle.finalize(); err != nil {
		return nil, err
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	b.logger.Debug("configured table", "name", bundle.Name, "columns", bundle.Columns.Len())
	return bundle, nil
}

// overlay replaces the pieces the session overrides for url. The result
// is a copy; bundle itself is left as it was.
func (b *Builder) overlay(bundle *ConfigBundle, r session.Reader, url string) (*ConfigBundle, error) {
	out := bundle.clone()
	changed := false

	if key := SessionKey(bundle.Name, SessionColumns, url); r.Check(key) {
		cols, err := sessionValue[Columns](r.Read(key))
		if err != nil {
			return nil, fmt.Errorf("session columns: %w", err)
		}
		if cols.schema == nil {
			if err := cols.Bind(b.schema); err != nil {
				return nil, err
			}
		}
		out.Columns = cols
		changed = true
	}
	if key := SessionKey(bundle.Name, SessionOptions, url); r.Check(key) {
		opts, err := sessionValue[Options](r.Read(key))
		if err != nil {
			return nil, fmt.Errorf("session options: %w", err)
		}
		out.Options = opts
		changed = true
	}
	if key := SessionKey(bundle.Name, SessionQuery, url); r.Check(key) {
		q, err := sessionValue[QueryDefaults](r.Read(key))
		if err != nil {
			return nil, fmt.Errorf("session query: %w", err)
		}
		normalizeArgs(q)
		out.Query = q
		changed = true
	}

	if !changed {
		return bundle, nil
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// sessionValue accepts an override stored either as the Go value itself
// or as its JSON encoding.
func sessionValue[T any](v any) (*T, error) {
	var data []byte
	switch x := v.(type) {
	case *T:
		if x == nil {
			return nil, fmt.Errorf("%w: nil override", ErrInvalidConfiguration)
		}
		return x, nil
	case []byte:
		data = x
	case json.RawMessage:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, fmt.Errorf("%w: override of type %T", ErrInvalidConfiguration, v)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return out, nil
}
