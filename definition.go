package datatables

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Definition describes one table: its primary backing table and the
// configuration pass that fills a bundle with columns, options, query
// defaults and asset settings. Configure runs once per cache miss.
//
// A definition may also implement Identifier to control cache
// invalidation, and RowRenderer to format its own rows.
type Definition interface {
	Name() string
	Table() string
	Configure(b *ConfigBundle) error
}

// Identifier lets a definition name the content its configuration depends
// on. A change of identity invalidates cached bundles.
type Identifier interface {
	Identity() string
}

func identity(d Definition) string {
	if id, ok := d.(Identifier); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T:%s", d, d.Name())
}

// Registry maps definition references to definitions. References are a
// bare name or "namespace/name"; names from other namespaces are rejected.
type Registry struct {
	namespace string
	defs      map[string]Definition
	mu        sync.RWMutex
}

func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, defs: map[string]Definition{}}
}

func (r *Registry) Namespace() string { return r.namespace }

// Register adds definitions. Names must be identifier-safe and unique. The
// list is added as a whole or not at all.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		name := d.Name()
		if !labelPattern.MatchString(name) {
			return fmt.Errorf("%w: definition name %q", ErrInvalidConfiguration, name)
		}
		if _, dup := r.defs[name]; dup || names[name] {
			return fmt.Errorf("%w: definition %s registered twice", ErrInvalidConfiguration, name)
		}
		names[name] = true
	}
	for _, d := range defs {
		r.defs[d.Name()] = d
	}
	return nil
}

// Resolve returns the definition for ref.
func (r *Registry) Resolve(ref string) (Definition, error) {
	name := ref
	if ns, rest, found := strings.Cut(ref, "/"); found {
		if ns != r.namespace {
			return nil, &ConfigurationError{Ref: ref, Err: fmt.Errorf("%w: expected namespace %q", ErrForeignDefinition, r.namespace)}
		}
		name = rest
	}
	r.mu.RLock()
	d, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Ref: ref, Err: ErrUnknownDefinition}
	}
	return d, nil
}

// Names lists the registered definitions, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
