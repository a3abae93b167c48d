package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCatalogPrioritiesAreUniquePerBucket(t *testing.T) {
	c := DefaultCatalog()
	spec := func(theme Theme) Spec {
		ids := c.Plugins()
		s, err := NewSpec("", theme, true, JQuery3, ids...)
		if err != nil {
			t.Fatalf("NewSpec(%s): %v", theme, err)
		}
		return s
	}

	for _, theme := range Themes {
		for _, kind := range []Kind{Style, Script} {
			s := spec(theme)
			seen := map[int]string{}
			add := func(entries []Entry) {
				for _, e := range entries {
					if prev, dup := seen[e.Priority]; dup {
						t.Errorf("%s/%s: priority %d shared by %s and %s", theme, kind, e.Priority, prev, e.Path)
					}
					seen[e.Priority] = e.Path
				}
			}
			add(c.Base[kind][theme])
			add(c.Library[kind][theme])
			if kind == Script {
				add(c.JQuery[s.JQuery])
			}
			for _, id := range s.Plugins {
				add(c.PluginCore[kind][id])
				add(c.PluginTheme[kind][id][theme])
			}
		}
	}
}

func TestCatalogPlugins(t *testing.T) {
	c := DefaultCatalog()
	ids := c.Plugins()
	assert.Len(t, ids, 12)
	assert.IsIncreasing(t, ids)
	assert.True(t, c.HasPlugin("select"))
	assert.False(t, c.HasPlugin("Select"))
	for _, id := range ids {
		assert.True(t, c.HasPlugin(id), id)
	}
}

func TestCatalogPaths(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, []Entry{{100, "css/jquery.dataTables.min.css"}}, c.Base[Style][ThemeBase])
	assert.Equal(t, []Entry{{100, "css/dataTables.bootstrap.min.css"}}, c.Base[Style][ThemeBootstrap3])
	assert.Equal(t, []Entry{
		{100, "js/jquery.dataTables.min.js"},
		{101, "js/dataTables.foundation.min.js"},
	}, c.Base[Script][ThemeFoundation])
	assert.Equal(t, "extensions/Buttons/css/buttons.dataTables.min.css", c.PluginTheme[Style]["buttons"][ThemeBase][0].Path)
	assert.Empty(t, c.PluginTheme[Script]["buttons"][ThemeBase])
}
