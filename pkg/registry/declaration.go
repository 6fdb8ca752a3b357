package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/morezero/directive-dispatch/pkg/directive"
)

// Declaration is an operation in the tool-declaration shape a function-calling generator is prompted with:
//
//	{"type": "function", "function": {"name": ..., "description": ..., "parameters": {JSON Schema}}}
type Declaration struct {
	Type     string              `json:"type"`
	Function FunctionDeclaration `json:"function"`
}

// FunctionDeclaration describes one callable operation.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// DeclarationFor renders schema as a tool declaration whose parameters are a JSON Schema object.
// Unknown properties are rejected, matching the dispatcher's strict argument check.
func DeclarationFor(schema OperationSchema) Declaration {
	props := make(map[string]any, len(schema.Parameters))
	required := []any{}
	for _, p := range schema.Parameters {
		prop := map[string]any{}
		if p.Type != TypeAny {
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.AllowedValues) > 0 {
			enum := make([]any, 0, len(p.AllowedValues))
			for _, a := range p.AllowedValues {
				lit, err := enumLiteral(p.Type, a)
				if err != nil {
					lit = a
				}
				enum = append(enum, lit)
			}
			prop["enum"] = enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Declaration{
		Type: "function",
		Function: FunctionDeclaration{
			Name:        schema.Name,
			Description: schema.Description,
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             required,
				"additionalProperties": false,
			},
		},
	}
}

// CompileParameters compiles a parameters object as a draft 2020-12 JSON Schema.
func CompileParameters(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, name, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	loc := "mem://operations/" + url.PathEscape(name) + ".json"
	if err := compiler.AddResource(loc, strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, name, err)
	}
	compiled, err := compiler.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDeclaration, name, err)
	}
	return compiled, nil
}

// SchemaFromDeclaration converts a tool declaration back into an OperationSchema.
// Required parameters come first in the order they are listed, then the optional ones by name.
// Only scalar property types are accepted.
func SchemaFromDeclaration(d Declaration) (OperationSchema, error) {
	fn := d.Function
	if d.Type != "" && d.Type != "function" {
		return OperationSchema{}, fmt.Errorf("%w: %s: type %q", ErrInvalidDeclaration, fn.Name, d.Type)
	}
	if _, err := CompileParameters(fn.Name, fn.Parameters); err != nil {
		return OperationSchema{}, err
	}

	props, _ := fn.Parameters["properties"].(map[string]any)
	required := map[string]bool{}
	var names []string
	if list, ok := fn.Parameters["required"].([]any); ok {
		for _, r := range list {
			name, ok := r.(string)
			if !ok {
				return OperationSchema{}, fmt.Errorf("%w: %s: required entry %v", ErrInvalidDeclaration, fn.Name, r)
			}
			if _, declared := props[name]; !declared {
				return OperationSchema{}, fmt.Errorf("%w: %s: required %q is not a property", ErrInvalidDeclaration, fn.Name, name)
			}
			if !required[name] {
				names = append(names, name)
			}
			required[name] = true
		}
	}

	optional := make([]string, 0, len(props))
	for name := range props {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	names = append(names, optional...)

	schema := OperationSchema{Name: fn.Name, Description: fn.Description}
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		spec := ParameterSpec{Name: name, Required: required[name]}
		if t, ok := prop["type"].(string); ok {
			spec.Type = ParamType(t)
		}
		if desc, ok := prop["description"].(string); ok {
			spec.Description = desc
		}
		if enum, ok := prop["enum"].([]any); ok {
			for _, e := range enum {
				v, ok := directive.FromInterface(e)
				if !ok {
					return OperationSchema{}, fmt.Errorf("%w: %s.%s: enum value %v is not a scalar", ErrInvalidDeclaration, fn.Name, name, e)
				}
				spec.AllowedValues = append(spec.AllowedValues, v.String())
			}
		}
		schema.Parameters = append(schema.Parameters, spec)
	}
	if err := schema.Validate(); err != nil {
		return OperationSchema{}, fmt.Errorf("%w: %v", ErrInvalidDeclaration, err)
	}
	return schema, nil
}
