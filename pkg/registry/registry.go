package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/morezero/directive-dispatch/pkg/directive"
)

const logPrefix = "registry:registry"

// Builder collects operations before the Registry is frozen. It is not safe for concurrent use.
type Builder struct {
	ops   map[string]Operation
	order []string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ops: make(map[string]Operation)}
}

// Register adds the operation, replacing any earlier one with the same name.
func (b *Builder) Register(schema OperationSchema, handler Handler) *Builder {
	if _, exists := b.ops[schema.Name]; !exists {
		b.order = append(b.order, schema.Name)
	} else {
		slog.Debug(fmt.Sprintf("%s - replacing operation %s", logPrefix, schema.Name))
	}
	b.ops[schema.Name] = Operation{Schema: schema, Handler: handler}
	return b
}

// Build validates every operation, compiles its parameter JSON Schema and returns an immutable Registry.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		ops:      make(map[string]*Operation, len(b.ops)),
		compiled: make(map[string]*jsonschema.Schema, len(b.ops)),
	}
	for _, name := range b.order {
		op := b.ops[name]
		if err := op.Schema.Validate(); err != nil {
			return nil, fmt.Errorf("%s - invalid schema: %w", logPrefix, err)
		}
		if op.Handler == nil {
			return nil, fmt.Errorf("%s - %w: %s", logPrefix, ErrHandlerNil, name)
		}
		decl := DeclarationFor(op.Schema)
		compiled, err := CompileParameters(name, decl.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%s - %w", logPrefix, err)
		}

		op.Schema = cloneSchema(op.Schema)
		r.ops[name] = &op
		r.compiled[name] = compiled
		r.names = append(r.names, name)
		r.declarations = append(r.declarations, decl)
	}
	slog.Info(fmt.Sprintf("%s - registry built with %d operations", logPrefix, len(r.names)))
	return r, nil
}

// MustBuild is Build that panics on error, for static registries.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// Registry maps operation names to schemas and handlers. It never changes after Build, so
// concurrent lookups need no locking.
type Registry struct {
	ops          map[string]*Operation
	compiled     map[string]*jsonschema.Schema
	names        []string
	declarations []Declaration
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (OperationSchema, bool) {
	op, ok := r.ops[name]
	if !ok {
		return OperationSchema{}, false
	}
	return cloneSchema(op.Schema), true
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (Handler, bool) {
	op, ok := r.ops[name]
	if !ok {
		return nil, false
	}
	return op.Handler, true
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	sort.Strings(names)
	return names
}

// Count returns the number of registered operations.
func (r *Registry) Count() int {
	return len(r.ops)
}

// Declarations returns the tool declarations in registration order.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, len(r.declarations))
	copy(out, r.declarations)
	return out
}

// ValidateDeclared checks args against the operation's exported JSON Schema.
func (r *Registry) ValidateDeclared(name string, args directive.ArgumentMap) error {
	s, ok := r.compiled[name]
	if !ok {
		return directive.UnknownOperation(name)
	}
	return s.Validate(args.Interface())
}

func cloneSchema(s OperationSchema) OperationSchema {
	if s.Parameters == nil {
		return s
	}
	params := make([]ParameterSpec, len(s.Parameters))
	for i, p := range s.Parameters {
		if p.AllowedValues != nil {
			p.AllowedValues = append([]string(nil), p.AllowedValues...)
		}
		params[i] = p
	}
	s.Parameters = params
	return s
}
