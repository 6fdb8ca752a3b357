// Package registry holds the operation schemas and handlers the dispatcher routes directives to.
package registry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/morezero/directive-dispatch/pkg/directive"
)

// ParamType is the primitive type a parameter accepts. The empty type accepts any scalar.
type ParamType string

const (
	TypeAny     ParamType = ""
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Accepts reports whether a decoded value of kind k satisfies t.
func (t ParamType) Accepts(k directive.Kind) bool {
	switch t {
	case TypeString:
		return k == directive.KindString
	case TypeNumber:
		return k == directive.KindNumber
	case TypeBoolean:
		return k == directive.KindBool
	}
	return true
}

func (t ParamType) valid() bool {
	switch t {
	case TypeAny, TypeString, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// ParameterSpec declares one parameter of an operation.
type ParameterSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	// AllowedValues restricts the value's string form. Empty means unconstrained.
	AllowedValues []string `json:"allowedValues,omitempty"`
}

// Allows reports whether value (in string form) satisfies the enumeration constraint.
func (p ParameterSpec) Allows(value string) bool {
	if len(p.AllowedValues) == 0 {
		return true
	}
	for _, a := range p.AllowedValues {
		if a == value {
			return true
		}
	}
	return false
}

// OperationSchema is the declared contract of one operation.
type OperationSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ParameterSpec `json:"parameters"`
}

// Parameter returns the parameter declared as name.
func (s OperationSchema) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Required returns the names of the required parameters in declaration order.
func (s OperationSchema) Required() []string {
	var out []string
	for _, p := range s.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Validate checks the schema invariants: a non-empty name and uniquely named, well-typed parameters.
func (s OperationSchema) Validate() error {
	if s.Name == "" {
		return ErrOperationNameEmpty
	}
	seen := make(map[string]bool, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: operation %s", ErrParameterNameEmpty, s.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s.%s", ErrDuplicateParameter, s.Name, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return fmt.Errorf("%w: %s.%s has type %q", ErrInvalidParameterType, s.Name, p.Name, p.Type)
		}
		for _, a := range p.AllowedValues {
			if _, err := enumLiteral(p.Type, a); err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidParameterType, s.Name, p.Name, err)
			}
		}
	}
	return nil
}

// enumLiteral converts an allowed value to the JSON literal matching the parameter type.
func enumLiteral(t ParamType, s string) (any, error) {
	switch t {
	case TypeNumber:
		return strconv.ParseFloat(s, 64)
	case TypeBoolean:
		return strconv.ParseBool(s)
	}
	return s, nil
}

// Handler performs an operation with validated arguments.
type Handler interface {
	Invoke(ctx context.Context, args directive.ArgumentMap) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args directive.ArgumentMap) error

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, args directive.ArgumentMap) error {
	return f(ctx, args)
}

// Bind builds a Handler that converts the validated map into the typed argument struct T
// with bind, then runs run on it.
func Bind[T any](bind func(directive.ArgumentMap) (T, error), run func(context.Context, T) error) Handler {
	return HandlerFunc(func(ctx context.Context, args directive.ArgumentMap) error {
		typed, err := bind(args)
		if err != nil {
			return fmt.Errorf("bind arguments: %w", err)
		}
		return run(ctx, typed)
	})
}

// Operation pairs a schema with its handler.
type Operation struct {
	Schema  OperationSchema
	Handler Handler
}
