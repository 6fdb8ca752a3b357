package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/directive-dispatch/pkg/directive"
	"github.com/morezero/directive-dispatch/pkg/events"
)

const pipelineLogPrefix = "dispatcher:pipeline"

// Pipeline runs generator text through extraction, decoding and dispatch.
type Pipeline struct {
	syntax     directive.Syntax
	dispatcher *Dispatcher
	publisher  events.EventPublisher
	now        func() time.Time
}

// PipelineOpts configures a Pipeline. Zero values use defaults.
type PipelineOpts struct {
	Syntax    directive.Syntax
	Publisher events.EventPublisher
}

// NewPipeline creates a Pipeline. Pass nil for opts to use the default syntax and no events.
func NewPipeline(d *Dispatcher, opts *PipelineOpts) *Pipeline {
	p := &Pipeline{
		syntax:     directive.DefaultSyntax(),
		dispatcher: d,
		publisher:  &events.NoOpPublisher{},
		now:        time.Now,
	}
	if opts != nil {
		if opts.Syntax != (directive.Syntax{}) {
			p.syntax = opts.Syntax
		}
		if opts.Publisher != nil {
			p.publisher = opts.Publisher
		}
	}
	return p
}

// Syntax returns the directive syntax p parses.
func (p *Pipeline) Syntax() directive.Syntax {
	return p.syntax
}

// Dispatcher returns the dispatcher p routes to.
func (p *Pipeline) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Parse extracts and decodes the first directive in text without validating or dispatching it.
func (p *Pipeline) Parse(text string) (*directive.Call, error) {
	return p.syntax.DecodeDirective(text)
}

// Process extracts the first directive in text, decodes its arguments and dispatches it.
// Every attempt that found directive markers is published as a DispatchEvent; text without
// markers returns NO_DIRECTIVE_FOUND and publishes nothing.
func (p *Pipeline) Process(ctx context.Context, text string) (*Outcome, error) {
	d, err := p.syntax.Extract(text)
	if err != nil {
		if !directive.IsCode(err, directive.CodeNoDirectiveFound) {
			p.publish(ctx, text, "", nil, err)
		}
		return nil, err
	}

	args, err := p.syntax.Decode(d.RawArgumentBody)
	if err != nil {
		p.publish(ctx, text, d.OperationName, nil, err)
		return nil, err
	}

	outcome, err := p.dispatcher.Dispatch(ctx, d.OperationName, args)
	p.publish(ctx, text, d.OperationName, args, err)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - dispatched %s", pipelineLogPrefix, outcome.Operation))
	return outcome, nil
}

func (p *Pipeline) publish(ctx context.Context, text, operation string, args directive.ArgumentMap, err error) {
	event := &events.DispatchEvent{
		ID:        uuid.NewString(),
		Operation: operation,
		Arguments: args,
		Ok:        err == nil,
		Timestamp: p.now().UTC().Format(time.RFC3339Nano),
	}
	if err != nil {
		event.Raw = text
		var de *directive.DirectiveError
		if errors.As(err, &de) {
			event.Code = de.Code
			event.Message = de.Message
		} else {
			event.Message = err.Error()
		}
	}
	if perr := p.publisher.PublishDispatched(ctx, event); perr != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish dispatch event %s: %v", pipelineLogPrefix, event.ID, perr))
	}
}
