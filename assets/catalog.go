package assets

import (
	"sort"
	"strings"
)

// Kind of asset bundle.
type Kind string

const (
	Style  Kind = "style"
	Script Kind = "script"
)

// Theme is the styling integration the widget is rendered with.
type Theme string

const (
	ThemeBase       Theme = "base"
	ThemeBootstrap3 Theme = "bootstrap3"
	ThemeBootstrap4 Theme = "bootstrap4"
	ThemeFoundation Theme = "foundation"
	ThemeJQueryUI   Theme = "jqueryui"
	ThemeSemanticUI Theme = "semanticui"
)

// Themes lists the supported themes.
var Themes = []Theme{ThemeBase, ThemeBootstrap3, ThemeBootstrap4, ThemeFoundation, ThemeJQueryUI, ThemeSemanticUI}

// JQuery selects which jQuery build, if any, is bundled with the scripts.
type JQuery string

const (
	JQueryNone JQuery = "none"
	JQuery1    JQuery = "jquery1"
	JQuery3    JQuery = "jquery3"
)

// Versions lists the supported library versions; each one is a directory
// under the asset root.
var Versions = []string{"1.10.25", "1.13.8"}

const DefaultVersion = "1.13.8"

// Entry is one file of a bundle. Priority orders files inside a bundle,
// lower first.
type Entry struct {
	Priority int    `json:"priority"`
	Path     string `json:"path"`
}

// Catalog is the static registry the selector folds over.
type Catalog struct {
	Base        map[Kind]map[Theme][]Entry
	Library     map[Kind]map[Theme][]Entry
	JQuery      map[JQuery][]Entry
	PluginCore  map[Kind]map[string][]Entry
	PluginTheme map[Kind]map[string]map[Theme][]Entry
}

// Plugins returns the plugin ids known to the catalog, sorted.
func (c *Catalog) Plugins() []string {
	seen := map[string]bool{}
	for _, byPlugin := range c.PluginCore {
		for id := range byPlugin {
			seen[id] = true
		}
	}
	for _, byPlugin := range c.PluginTheme {
		for id := range byPlugin {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasPlugin reports whether id is a known plugin.
func (c *Catalog) HasPlugin(id string) bool {
	for _, byPlugin := range c.PluginCore {
		if _, ok := byPlugin[id]; ok {
			return true
		}
	}
	for _, byPlugin := range c.PluginTheme {
		if _, ok := byPlugin[id]; ok {
			return true
		}
	}
	return false
}

// plugin describes an extension laid out the way the DataTables
// distribution ships them.
type plugin struct {
	id   string
	dir  string
	name string
}

var plugins = []plugin{
	{"autofill", "AutoFill", "autoFill"},
	{"buttons", "Buttons", "buttons"},
	{"colreorder", "ColReorder", "colReorder"},
	{"fixedcolumns", "FixedColumns", "fixedColumns"},
	{"fixedheader", "FixedHeader", "fixedHeader"},
	{"keytable", "KeyTable", "keyTable"},
	{"responsive", "Responsive", "responsive"},
	{"rowgroup", "RowGroup", "rowGroup"},
	{"rowreorder", "RowReorder", "rowReorder"},
	{"scroller", "Scroller", "scroller"},
	{"searchpanes", "SearchPanes", "searchPanes"},
	{"select", "Select", "select"},
}

// themeSuffix is the file-name suffix of a theme's integration files.
func themeSuffix(t Theme) string {
	switch t {
	case ThemeBase:
		return "dataTables"
	case ThemeBootstrap3:
		return "bootstrap"
	}
	return string(t)
}

// Priority bands. Inside a (theme, kind) bucket every entry gets its own
// priority.
const (
	prioJQuery      = 10
	prioLibrary     = 50
	prioCore        = 100
	prioIntegration = 101
	prioPlugins     = 200
	pluginStride    = 10
)

// defaultCatalog backs NewSpec and ParseQuery. Never modified.
var defaultCatalog = DefaultCatalog()

// DefaultCatalog returns the catalog of the DataTables distribution layout.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Base: map[Kind]map[Theme][]Entry{
			Style:  {},
			Script: {},
		},
		Library: map[Kind]map[Theme][]Entry{
			Style: {
				ThemeBootstrap3: {{prioLibrary, "libs/bootstrap/3.4.1/css/bootstrap.min.css"}},
				ThemeBootstrap4: {{prioLibrary, "libs/bootstrap/4.6.2/css/bootstrap.min.css"}},
				ThemeFoundation: {{prioLibrary, "libs/foundation/6.4.3/css/foundation.min.css"}},
				ThemeJQueryUI:   {{prioLibrary, "libs/jqueryui/1.12.1/themes/base/jquery-ui.min.css"}},
				ThemeSemanticUI: {{prioLibrary, "libs/semantic-ui/2.4.1/semantic.min.css"}},
			},
			Script: {
				ThemeBootstrap3: {{prioLibrary, "libs/bootstrap/3.4.1/js/bootstrap.min.js"}},
				ThemeBootstrap4: {{prioLibrary, "libs/bootstrap/4.6.2/js/bootstrap.bundle.min.js"}},
				ThemeFoundation: {{prioLibrary, "libs/foundation/6.4.3/js/foundation.min.js"}},
				ThemeJQueryUI:   {{prioLibrary, "libs/jqueryui/1.12.1/jquery-ui.min.js"}},
				ThemeSemanticUI: {{prioLibrary, "libs/semantic-ui/2.4.1/semantic.min.js"}},
			},
		},
		JQuery: map[JQuery][]Entry{
			JQuery1: {{prioJQuery, "libs/jquery/jquery-1.12.4.min.js"}},
			JQuery3: {{prioJQuery, "libs/jquery/jquery-3.7.1.min.js"}},
		},
		PluginCore: map[Kind]map[string][]Entry{
			Style:  {},
			Script: {},
		},
		PluginTheme: map[Kind]map[string]map[Theme][]Entry{
			Style:  {},
			Script: {},
		},
	}

	for _, t := range Themes {
		suffix := themeSuffix(t)
		c.Base[Style][t] = []Entry{{prioCore, "css/" + suffixedName("dataTables", suffix, t) + ".min.css"}}
		scripts := []Entry{{prioCore, "js/jquery.dataTables.min.js"}}
		if t != ThemeBase {
			scripts = append(scripts, Entry{prioIntegration, "js/dataTables." + suffix + ".min.js"})
		}
		c.Base[Script][t] = scripts
	}

	for i, p := range plugins {
		prio := prioPlugins + i*pluginStride
		base := "extensions/" + p.dir + "/"
		c.PluginCore[Script][p.id] = []Entry{{prio, base + "js/dataTables." + p.name + ".min.js"}}

		styles := map[Theme][]Entry{}
		scripts := map[Theme][]Entry{}
		for _, t := range Themes {
			suffix := themeSuffix(t)
			styles[t] = []Entry{{prio, base + "css/" + p.name + "." + suffix + ".min.css"}}
			if t != ThemeBase {
				scripts[t] = []Entry{{prio + 1, base + "js/" + p.name + "." + suffix + ".min.js"}}
			}
		}
		c.PluginTheme[Style][p.id] = styles
		c.PluginTheme[Script][p.id] = scripts
	}
	return c
}

// suffixedName builds the core stylesheet name: jquery.dataTables for the
// base theme, dataTables.<suffix> for integrations.
func suffixedName(name, suffix string, t Theme) string {
	if t == ThemeBase {
		return "jquery." + name
	}
	return strings.Join([]string{name, suffix}, ".")
}
