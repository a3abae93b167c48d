package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gnemet/datatables"
	"github.com/spf13/cobra"
)

var (
	validateSchema string
	validateKind   string
)

var validateCmd = &cobra.Command{
	Use:   "validate <catalog> [catalog...]",
	Short: "Validate definition or schema catalogs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var schema *datatables.Schema
		if validateSchema != "" {
			var err error
			if schema, err = datatables.LoadSchema(validateSchema); err != nil {
				return fmt.Errorf("schema %s: %w", validateSchema, err)
			}
		}

		allValid := true
		for _, path := range args {
			name := filepath.Base(path)
			if err := validateFile(path, schema); err != nil {
				fmt.Printf("❌ %s is invalid!\n   - %v\n", name, err)
				allValid = false
				continue
			}
			fmt.Printf("✅ %s is valid.\n", name)
		}
		if !allValid {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateKind, "kind", "definition", "Catalog kind: definition or schema")
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "Schema catalog to configure definitions against")
}

// validateFile checks the document shape and, with a schema, runs the
// definition's configuration pass.
func validateFile(path string, schema *datatables.Schema) error {
	if validateKind == "schema" {
		_, err := datatables.LoadSchema(path)
		return err
	}
	def, err := datatables.LoadCatalogDefinition(path)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	reg := datatables.NewRegistry("validate")
	if err := reg.Register(def); err != nil {
		return err
	}
	_, err = datatables.NewBuilder(reg, schema).GetConfigBundle(context.Background(), def.Name(), datatables.BypassCache())
	return err
}
