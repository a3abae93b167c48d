package main

import (
	"fmt"
	"os"

	"github.com/gnemet/datatables/assets"
	"github.com/spf13/cobra"
)

var (
	bundleRoot    string
	bundleVersion string
	bundleTheme   string
	bundleLibrary bool
	bundleJQuery  string
	bundlePlugins []string
	bundleKind    string
	bundleList    bool
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Write the CSS or JS bundle of an asset selection to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := assets.NewSpec(bundleVersion, assets.Theme(bundleTheme), bundleLibrary, assets.JQuery(bundleJQuery), bundlePlugins...)
		if err != nil {
			return err
		}
		kind := assets.Style
		switch bundleKind {
		case "css", "style":
		case "js", "script":
			kind = assets.Script
		default:
			return fmt.Errorf("unknown kind %q, want css or js", bundleKind)
		}

		sel := assets.NewSelector(os.DirFS(bundleRoot))
		if bundleList {
			for _, e := range sel.Files(spec, kind) {
				fmt.Printf("%4d  %s/%s\n", e.Priority, spec.Version, e.Path)
			}
			return nil
		}
		data, err := sel.Resolve(cmd.Context(), spec, kind)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	f := bundleCmd.Flags()
	f.StringVar(&bundleRoot, "root", "assets", "Asset root containing one directory per version")
	f.StringVar(&bundleVersion, "version", assets.DefaultVersion, "Library version")
	f.StringVar(&bundleTheme, "theme", string(assets.ThemeBase), "Theme")
	f.BoolVar(&bundleLibrary, "library", false, "Include the theme's framework library")
	f.StringVar(&bundleJQuery, "jquery", string(assets.JQueryNone), "jQuery build: none, jquery1 or jquery3")
	f.StringSliceVar(&bundlePlugins, "plugins", nil, "Plugins to enable")
	f.StringVar(&bundleKind, "kind", "css", "Bundle kind: css or js")
	f.BoolVar(&bundleList, "list", false, "List the selected files instead of writing the bundle")
}
