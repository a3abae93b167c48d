package assets

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSpec is returned when a spec names an unsupported version,
// theme, jQuery variant or plugin.
var ErrInvalidSpec = errors.New("assets: invalid spec")

// Spec selects one combination of library version, theme, framework
// library, jQuery build and plugins. Build it with NewSpec or ParseQuery;
// a Spec is treated as a value and never changed in place.
type Spec struct {
	Version     string   `json:"version"`
	Theme       Theme    `json:"theme"`
	LoadLibrary bool     `json:"library"`
	JQuery      JQuery   `json:"jquery"`
	Plugins     []string `json:"plugins,omitempty"`
}

// DefaultSpec is the base theme of the default version with nothing else.
func DefaultSpec() Spec {
	return Spec{Version: DefaultVersion, Theme: ThemeBase, JQuery: JQueryNone}
}

// NewSpec validates and normalizes a spec. Plugin ids are deduplicated and
// sorted.
func NewSpec(version string, theme Theme, library bool, jq JQuery, plugins ...string) (Spec, error) {
	return newSpec(defaultCatalog, version, theme, library, jq, plugins)
}

func newSpec(c *Catalog, version string, theme Theme, library bool, jq JQuery, plugins []string) (Spec, error) {
	if version == "" {
		version = DefaultVersion
	}
	if jq == "" {
		jq = JQueryNone
	}
	s := Spec{Version: version, Theme: theme, LoadLibrary: library, JQuery: jq, Plugins: normalizePlugins(plugins)}
	if err := s.ValidateFor(c); err != nil {
		return Spec{}, err
	}
	return s, nil
}

func normalizePlugins(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strings.ToLower(strings.TrimSpace(id)))
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// Validate checks every identifier against the supported sets and the
// plugins of the default catalog.
func (s Spec) Validate() error {
	return s.ValidateFor(defaultCatalog)
}

// ValidateFor is Validate with the plugins of catalog c.
func (s Spec) ValidateFor(c *Catalog) error {
	if !slices.Contains(Versions, s.Version) {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSpec, s.Version)
	}
	if !slices.Contains(Themes, s.Theme) {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidSpec, s.Theme)
	}
	switch s.JQuery {
	case JQueryNone, JQuery1, JQuery3:
	default:
		return fmt.Errorf("%w: unknown jquery variant %q", ErrInvalidSpec, s.JQuery)
	}
	for _, id := range s.Plugins {
		if !c.HasPlugin(id) {
			return fmt.Errorf("%w: unknown plugin %q", ErrInvalidSpec, id)
		}
	}
	return nil
}

// WithPlugins returns a copy of s with the given plugins enabled as well.
func (s Spec) WithPlugins(ids ...string) (Spec, error) {
	all := append(slices.Clone(s.Plugins), ids...)
	return NewSpec(s.Version, s.Theme, s.LoadLibrary, s.JQuery, all...)
}

// Has reports whether plugin id is enabled.
func (s Spec) Has(id string) bool {
	return slices.Contains(s.Plugins, id)
}

// Encode is the canonical form of the spec, used to derive cache keys.
func (s Spec) Encode() string {
	return s.Query().Encode()
}

// Query encodes the spec as the query string the asset endpoints take:
// version, theme, library, jquery (variant or false) and plugins[id]=1.
func (s Spec) Query() url.Values {
	v := url.Values{}
	v.Set("version", s.Version)
	v.Set("theme", string(s.Theme))
	v.Set("library", strconv.FormatBool(s.LoadLibrary))
	if s.JQuery == JQueryNone || s.JQuery == "" {
		v.Set("jquery", "false")
	} else {
		v.Set("jquery", string(s.JQuery))
	}
	for _, id := range s.Plugins {
		v.Set("plugins["+id+"]", "1")
	}
	return v
}

var pluginParam = regexp.MustCompile(`^plugins\[([^\]]+)\]$`)

// ParseQuery builds a spec from asset endpoint parameters. Missing values
// take the defaults of DefaultSpec.
func ParseQuery(v url.Values) (Spec, error) {
	return parseQuery(v, defaultCatalog)
}

func parseQuery(v url.Values, c *Catalog) (Spec, error) {
	d := DefaultSpec()
	version := v.Get("version")
	if version == "" {
		version = d.Version
	}
	theme := Theme(v.Get("theme"))
	if theme == "" {
		theme = d.Theme
	}

	library, err := parseFlag(v.Get("library"))
	if err != nil {
		return Spec{}, fmt.Errorf("%w: library: %v", ErrInvalidSpec, err)
	}

	jq := JQuery(v.Get("jquery"))
	if off, err := parseFlag(string(jq)); err == nil && !off {
		jq = JQueryNone
	}

	var ids []string
	for key, vals := range v {
		m := pluginParam.FindStringSubmatch(key)
		if m == nil || len(vals) == 0 {
			continue
		}
		on, err := parseFlag(vals[0])
		if err != nil {
			return Spec{}, fmt.Errorf("%w: plugin %s: %v", ErrInvalidSpec, m[1], err)
		}
		if on {
			ids = append(ids, m[1])
		}
	}
	return newSpec(c, version, theme, library, jq, ids)
}

// parseFlag accepts the boolean spellings the widget and browsers send;
// the empty string is false.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "1", "true", "on", "yes":
		return true, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
