// Package dispatcher validates decoded directives against the operation registry,
// invokes their handlers, and routes COMMS requests to that pipeline.
package dispatcher

import "github.com/morezero/directive-dispatch/pkg/directive"

// DirectiveRequest is the JSON envelope for incoming COMMS requests.
//
// Method selects the action: "dispatch", "parse" and "validate" read Text; "format" reads
// Operation and Arguments; "operations" takes no input.
type DirectiveRequest struct {
	ID        string                `json:"id"`
	Method    string                `json:"method"`
	Text      string                `json:"text,omitempty"`
	Operation string                `json:"operation,omitempty"`
	Arguments directive.ArgumentMap `json:"arguments,omitempty"`
}

// DirectiveResponse is the JSON envelope for COMMS responses.
type DirectiveResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// ErrorDetails carries the diagnostic context of a DirectiveError.
type ErrorDetails struct {
	Operation string `json:"operation,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Value     string `json:"value,omitempty"`
	Text      string `json:"text,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// FormatResult is the result of the "format" method.
type FormatResult struct {
	Directive string `json:"directive"`
	Canonical string `json:"canonical"`
}
