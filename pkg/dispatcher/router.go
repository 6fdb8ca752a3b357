package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/directive-dispatch/pkg/directive"
)

const routerLogPrefix = "dispatcher:router"

// Internal error codes used at the COMMS boundary.
const (
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeSchemaMismatch  = "SCHEMA_MISMATCH"
)

// Router routes COMMS requests to the pipeline.
type Router struct {
	pipeline *Pipeline
}

// NewRouter creates a new Router.
func NewRouter(p *Pipeline) *Router {
	return &Router{pipeline: p}
}

// Handle routes a request to the appropriate method and returns a response.
func (r *Router) Handle(ctx context.Context, req *DirectiveRequest) *DirectiveResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", routerLogPrefix, req.Method, req.ID))

	switch req.Method {
	case "dispatch":
		return r.handleDispatch(ctx, req)
	case "parse":
		return r.handleParse(req)
	case "validate":
		return r.handleValidate(req)
	case "format":
		return r.handleFormat(req)
	case "operations":
		return r.handleOperations(req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

func (r *Router) handleDispatch(ctx context.Context, req *DirectiveRequest) *DirectiveResponse {
	outcome, err := r.pipeline.Process(ctx, req.Text)
	if err != nil {
		return directiveErrorToResponse(req.ID, err)
	}
	return &DirectiveResponse{ID: req.ID, Ok: true, Result: outcome}
}

func (r *Router) handleParse(req *DirectiveRequest) *DirectiveResponse {
	call, err := r.pipeline.Parse(req.Text)
	if err != nil {
		return directiveErrorToResponse(req.ID, err)
	}
	return &DirectiveResponse{ID: req.ID, Ok: true, Result: call}
}

func (r *Router) handleValidate(req *DirectiveRequest) *DirectiveResponse {
	call, err := r.pipeline.Parse(req.Text)
	if err != nil {
		return directiveErrorToResponse(req.ID, err)
	}
	d := r.pipeline.Dispatcher()
	if _, err := d.Validate(call.Name, call.Arguments); err != nil {
		return directiveErrorToResponse(req.ID, err)
	}
	// the call must also satisfy the declaration the generator was prompted with
	if err := d.Registry().ValidateDeclared(call.Name, call.Arguments); err != nil {
		slog.Error(fmt.Sprintf("%s - %s passed validation but not its declared schema: %v", routerLogPrefix, call.Name, err))
		return errorResponse(req.ID, CodeSchemaMismatch, err.Error(), false)
	}
	return &DirectiveResponse{ID: req.ID, Ok: true, Result: call}
}

func (r *Router) handleFormat(req *DirectiveRequest) *DirectiveResponse {
	if req.Operation == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "operation is required", false)
	}
	args := req.Arguments
	if args == nil {
		args = directive.ArgumentMap{}
	}
	text, err := r.pipeline.Syntax().Format(req.Operation, args)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, err.Error(), false)
	}
	canonical, err := directive.Canonical(args)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, err.Error(), false)
	}
	return &DirectiveResponse{ID: req.ID, Ok: true, Result: &FormatResult{Directive: text, Canonical: canonical}}
}

func (r *Router) handleOperations(req *DirectiveRequest) *DirectiveResponse {
	return &DirectiveResponse{ID: req.ID, Ok: true, Result: r.pipeline.Dispatcher().Registry().Declarations()}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *DirectiveResponse {
	return &DirectiveResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func directiveErrorToResponse(id string, err error) *DirectiveResponse {
	var de *directive.DirectiveError
	if errors.As(err, &de) {
		details := &ErrorDetails{
			Operation: de.Operation,
			Parameter: de.Parameter,
			Value:     de.Value,
			Text:      de.Text,
		}
		if de.Err != nil {
			details.Cause = de.Err.Error()
		}
		return &DirectiveResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      de.Code,
				Message:   de.Message,
				Details:   details,
				Retryable: de.Code == directive.CodeHandlerFailure,
			},
		}
	}
	return errorResponse(id, CodeInternalError, err.Error(), true)
}
