package datatables

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// DocumentError lists the JSON Schema violations of a catalog document.
type DocumentError struct {
	Kind     string
	Problems []string
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("datatables: invalid %s document: %s", e.Kind, strings.Join(e.Problems, "; "))
}

func (e *DocumentError) Unwrap() error { return ErrInvalidConfiguration }

// ValidateSchemaDocument checks a schema catalog (YAML or JSON) against the
// embedded schema.schema.json.
func ValidateSchemaDocument(data []byte) error {
	return validateDocument("schema", "schemas/schema.schema.json", data)
}

// ValidateDefinitionDocument checks a table definition catalog (YAML or
// JSON) against the embedded definition.schema.json.
func ValidateDefinitionDocument(data []byte) error {
	return validateDocument("definition", "schemas/definition.schema.json", data)
}

func validateDocument(kind, schemaPath string, data []byte) error {
	raw, err := schemaFS.ReadFile(schemaPath)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &DocumentError{Kind: kind, Problems: []string{err.Error()}}
	}
	if doc == nil {
		return &DocumentError{Kind: kind, Problems: []string{"document is empty"}}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(raw), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("datatables: validate %s: %w", kind, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &DocumentError{Kind: kind, Problems: problems}
}
