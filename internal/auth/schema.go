// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemasFS embed.FS

// Format names a value format check.
type Format string

// Supported formats.
const (
	FormatNone  Format = "none"
	FormatEmail Format = "email"
)

// FieldMessages overrides the default message for individual rules.
type FieldMessages struct {
	Required string `yaml:"required,omitempty" json:"required,omitempty"`
	Min      string `yaml:"min,omitempty" json:"min,omitempty"`
	Max      string `yaml:"max,omitempty" json:"max,omitempty"`
	Format   string `yaml:"format,omitempty" json:"format,omitempty"`
	Match    string `yaml:"match,omitempty" json:"match,omitempty"`
}

// FieldRule describes the constraints for one input field.
type FieldRule struct {
	Field     string        `yaml:"field" json:"field" jsonschema:"required,pattern=^[a-zA-Z][a-zA-Z0-9_]*$"`
	Label     string        `yaml:"label" json:"label" jsonschema:"required,minLength=1"`
	Required  bool          `yaml:"required,omitempty" json:"required,omitempty"`
	MinLength int           `yaml:"min_length,omitempty" json:"min_length,omitempty" jsonschema:"minimum=0"`
	MaxLength int           `yaml:"max_length,omitempty" json:"max_length,omitempty" jsonschema:"minimum=0"`
	Format    Format        `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=none,enum=email"`
	Match     string        `yaml:"match,omitempty" json:"match,omitempty"`
	Messages  FieldMessages `yaml:"messages,omitempty" json:"messages,omitempty"`
}

// Schema is an ordered list of field rules for one form.
type Schema struct {
	Name   string      `yaml:"name" json:"name" jsonschema:"required,minLength=1"`
	Fields []FieldRule `yaml:"fields" json:"fields" jsonschema:"required,minItems=1"`
}

// Schemas holds the forms used by the auth service.
type Schemas struct {
	SignUp         *Schema
	SignIn         *Schema
	ForgotPassword *Schema
	ResetPassword  *Schema
}

// schemaFiles maps each form to its file name.
var schemaFiles = map[string]func(*Schemas, *Schema){
	"signup.yaml":          func(s *Schemas, v *Schema) { s.SignUp = v },
	"signin.yaml":          func(s *Schemas, v *Schema) { s.SignIn = v },
	"forgot_password.yaml": func(s *Schemas, v *Schema) { s.ForgotPassword = v },
	"reset_password.yaml":  func(s *Schemas, v *Schema) { s.ResetPassword = v },
}

// DefaultSchemas returns the built-in form schemas.
func DefaultSchemas() (*Schemas, error) {
	sub, err := fs.Sub(schemasFS, "schemas")
	if err != nil {
		return nil, oops.Code("SCHEMA_LOAD_FAILED").Wrap(err)
	}
	return LoadSchemas(sub)
}

// LoadSchemas reads and validates all form schemas from fsys.
func LoadSchemas(fsys fs.FS) (*Schemas, error) {
	out := &Schemas{}
	for name, assign := range schemaFiles {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, oops.Code("SCHEMA_LOAD_FAILED").With("file", name).Wrap(err)
		}
		schema, err := ParseSchema(data)
		if err != nil {
			return nil, oops.With("file", name).Wrap(err)
		}
		assign(out, schema)
	}
	return out, nil
}

// ParseSchema validates a YAML schema document and decodes it.
func ParseSchema(data []byte) (*Schema, error) {
	if err := ValidateSchemaDocument(data); err != nil {
		return nil, err
	}

	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, oops.Code("SCHEMA_INVALID").Wrap(err)
	}

	seen := make(map[string]bool, len(schema.Fields))
	for _, rule := range schema.Fields {
		if rule.MaxLength > 0 && rule.MinLength > rule.MaxLength {
			return nil, oops.Code("SCHEMA_INVALID").
				With("field", rule.Field).
				Errorf("min_length %d exceeds max_length %d", rule.MinLength, rule.MaxLength)
		}
		if rule.Match != "" && !seen[rule.Match] {
			return nil, oops.Code("SCHEMA_INVALID").
				With("field", rule.Field).
				Errorf("match target %q must be declared earlier", rule.Match)
		}
		seen[rule.Field] = true
	}
	return &schema, nil
}

// GenerateSchema reflects the JSON Schema that form schema files must satisfy.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Schema{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Hubbub Form Validation Schema"
	schema.Description = "Schema for form validation files under internal/auth/schemas"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// SchemaID is the $id of the generated JSON Schema.
const SchemaID = "https://hubbub.social/schemas/validation.schema.json"

var (
	compiledOnce   sync.Once
	compiledSchema *jschema.Schema
	compiledErr    error
)

// ValidateSchemaDocument checks YAML data against the generated JSON Schema.
func ValidateSchemaDocument(data []byte) error {
	if len(data) == 0 {
		return oops.Code("SCHEMA_INVALID").Errorf("schema document is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SCHEMA_INVALID").Wrap(err)
	}

	compiledOnce.Do(func() {
		compiledSchema, compiledErr = compileSchema()
	})
	if compiledErr != nil {
		return compiledErr
	}

	if err := compiledSchema.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("SCHEMA_INVALID").Wrap(err)
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("validation.schema.json", doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	sch, err := c.Compile("validation.schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	return sch, nil
}

// toJSONTypes normalizes YAML-decoded values to the shapes the JSON Schema
// validator expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONTypes(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case string, float64, bool, nil:
		return val
	default:
		return fmt.Sprint(val)
	}
}
