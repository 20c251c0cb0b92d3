package routing

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
)

//go:embed routes.schema.json
var routesSchemaJSON []byte

// routesFile is the on-disk shape of a route table.
type routesFile struct {
	Groups []struct {
		Name     string   `json:"name"`
		Patterns []string `json:"patterns"`
		Target   string   `json:"target"`
		Auth     string   `json:"auth"`
		Filter   string   `json:"filter"`
	} `json:"groups"`
}

// LoadFile reads a YAML route table, validates it against the embedded
// schema and compiles it.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("routes file %s: %w", path, err)
	}
	return table, nil
}

// Parse decodes a YAML (or JSON) route table.
func Parse(data []byte) (*Table, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if doc == nil {
		return nil, errors.New("routes document is empty")
	}

	// Round-trip through JSON so the schema validator and the decoder see
	// the same JSON value model.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert routes to JSON: %w", err)
	}

	if err := validateRoutes(raw); err != nil {
		return nil, err
	}

	var file routesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}

	groups := make([]RouteGroup, 0, len(file.Groups))
	for _, g := range file.Groups {
		groups = append(groups, RouteGroup{
			Name:     g.Name,
			Patterns: g.Patterns,
			Target:   Target(g.Target),
			Auth:     auth.Method(g.Auth),
			Filter:   g.Filter,
		})
	}
	return NewTable(groups)
}

func validateRoutes(raw []byte) error {
	schema, err := compileRoutesSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse routes JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid routes document: %s", formatValidationError(err))
	}
	return nil
}

func compileRoutesSchema() (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(routesSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse routes schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource("routes.schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add routes schema: %w", err)
	}
	schema, err := compiler.Compile("routes.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile routes schema: %w", err)
	}
	return schema, nil
}

// formatValidationError prefixes the validator's report with the JSON path
// of the innermost failure, e.g. "at '$.groups.0.target': ...".
func formatValidationError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := "$"
	if len(leaf.InstanceLocation) > 0 {
		path = "$." + strings.Join(leaf.InstanceLocation, ".")
	}
	return fmt.Sprintf("at '%s': %s", path, strings.TrimSpace(ve.Error()))
}
