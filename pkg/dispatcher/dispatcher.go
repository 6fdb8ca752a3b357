package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Outcome records a successful invocation: the operation and the exact arguments its handler received.
type Outcome struct {
	Operation string                `json:"operation"`
	Arguments directive.ArgumentMap `json:"arguments"`
}

// Dispatcher validates decoded arguments against the registry and invokes the matching handler.
// It holds no state besides the read-only registry, so one Dispatcher may serve concurrent calls.
type Dispatcher struct {
	registry *registry.Registry
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Registry returns the registry d routes to.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Validate checks args against the schema registered under name and returns that schema.
// Checks run in order and the first failure is returned: unknown operation, missing required
// parameter (declaration order), unexpected parameter (sorted by name), value outside the allowed
// set, then value of the wrong type.
func (d *Dispatcher) Validate(name string, args directive.ArgumentMap) (registry.OperationSchema, error) {
	schema, ok := d.registry.Lookup(name)
	if !ok {
		return registry.OperationSchema{}, directive.UnknownOperation(name)
	}

	for _, p := range schema.Parameters {
		if p.Required && !args.Has(p.Name) {
			return schema, directive.MissingParameter(name, p.Name)
		}
	}

	for _, key := range args.Keys() {
		if _, declared := schema.Parameter(key); !declared {
			return schema, directive.UnexpectedParameter(name, key)
		}
	}

	for _, p := range schema.Parameters {
		v, present := args[p.Name]
		if !present {
			continue
		}
		if !p.Allows(v.String()) {
			return schema, directive.InvalidEnumValue(name, p.Name, v.String())
		}
	}

	for _, p := range schema.Parameters {
		v, present := args[p.Name]
		if !present {
			continue
		}
		if !p.Type.Accepts(v.Kind()) {
			return schema, directive.InvalidParameterType(name, p.Name, string(p.Type), v.Kind())
		}
	}
	return schema, nil
}

// Dispatch validates args and invokes the handler registered under name. A handler error is
// returned as a HANDLER_FAILURE DirectiveError wrapping it.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args directive.ArgumentMap) (*Outcome, error) {
	if _, err := d.Validate(name, args); err != nil {
		slog.Debug(fmt.Sprintf("%s - rejected %s: %v", logPrefix, name, err))
		return nil, err
	}

	handler, ok := d.registry.Handler(name)
	if !ok {
		return nil, directive.UnknownOperation(name)
	}

	slog.Debug(fmt.Sprintf("%s - invoking %s with %d arguments", logPrefix, name, len(args)))
	if err := handler.Invoke(ctx, args); err != nil {
		slog.Warn(fmt.Sprintf("%s - handler %s failed: %v", logPrefix, name, err))
		return nil, directive.HandlerFailure(name, err)
	}
	return &Outcome{Operation: name, Arguments: args}, nil
}
