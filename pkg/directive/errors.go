package directive

import (
	"errors"
	"fmt"
)

// Error codes for every failure the directive pipeline can report.
const (
	CodeNoDirectiveFound     = "NO_DIRECTIVE_FOUND"
	CodeMalformedDirective   = "MALFORMED_DIRECTIVE"
	CodeArgumentDecodeError  = "ARGUMENT_DECODE_ERROR"
	CodeUnknownOperation     = "UNKNOWN_OPERATION"
	CodeMissingParameter     = "MISSING_PARAMETER"
	CodeUnexpectedParameter  = "UNEXPECTED_PARAMETER"
	CodeInvalidEnumValue     = "INVALID_ENUM_VALUE"
	CodeInvalidParameterType = "INVALID_PARAMETER_TYPE"
	CodeHandlerFailure       = "HANDLER_FAILURE"
)

// DirectiveError is a structured failure from extraction, decoding, validation or dispatch.
// Only the fields relevant to Code are set.
type DirectiveError struct {
	Code      string
	Message   string
	Operation string
	Parameter string
	// Value is the offending argument value, coerced to its string form.
	Value string
	// Text is the raw or transformed text that failed, kept for operator diagnostics.
	Text string
	Err  error
}

func (e *DirectiveError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *DirectiveError) Unwrap() error {
	return e.Err
}

// CodeOf returns the DirectiveError code carried by err, or "" when err is not one.
func CodeOf(err error) string {
	var de *DirectiveError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a DirectiveError with the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// NoDirectiveFound reports text without a start marker, or without an end marker after it.
func NoDirectiveFound(text string) *DirectiveError {
	return &DirectiveError{
		Code:    CodeNoDirectiveFound,
		Message: "no function call markers found in text",
		Text:    text,
	}
}

// MalformedDirective reports a marker span that is not shaped call:NAME{BODY}.
func MalformedDirective(block string) *DirectiveError {
	return &DirectiveError{
		Code:    CodeMalformedDirective,
		Message: fmt.Sprintf("unexpected function call format: %q", block),
		Text:    block,
	}
}

// ArgumentDecodeError reports an argument body that is not a well-formed object.
func ArgumentDecodeError(body string, cause error) *DirectiveError {
	return &DirectiveError{
		Code:    CodeArgumentDecodeError,
		Message: fmt.Sprintf("failed to decode arguments %q", body),
		Text:    body,
		Err:     cause,
	}
}

// UnknownOperation reports an operation name absent from the registry.
func UnknownOperation(name string) *DirectiveError {
	return &DirectiveError{
		Code:      CodeUnknownOperation,
		Message:   fmt.Sprintf("unknown operation %q", name),
		Operation: name,
	}
}

// MissingParameter reports a required parameter absent from the arguments.
func MissingParameter(operation, param string) *DirectiveError {
	return &DirectiveError{
		Code:      CodeMissingParameter,
		Message:   fmt.Sprintf("%s: missing required parameter %q", operation, param),
		Operation: operation,
		Parameter: param,
	}
}

// UnexpectedParameter reports an argument the operation schema does not declare.
func UnexpectedParameter(operation, param string) *DirectiveError {
	return &DirectiveError{
		Code:      CodeUnexpectedParameter,
		Message:   fmt.Sprintf("%s: unexpected parameter %q", operation, param),
		Operation: operation,
		Parameter: param,
	}
}

// InvalidEnumValue reports an argument outside its parameter's allowed values.
func InvalidEnumValue(operation, param, value string) *DirectiveError {
	return &DirectiveError{
		Code:      CodeInvalidEnumValue,
		Message:   fmt.Sprintf("%s: %q is not an allowed value for %q", operation, value, param),
		Operation: operation,
		Parameter: param,
		Value:     value,
	}
}

// InvalidParameterType reports an argument whose kind differs from the declared type.
func InvalidParameterType(operation, param string, want string, got Kind) *DirectiveError {
	return &DirectiveError{
		Code:      CodeInvalidParameterType,
		Message:   fmt.Sprintf("%s: parameter %q must be %s, got %s", operation, param, want, got),
		Operation: operation,
		Parameter: param,
		Value:     got.String(),
	}
}

// HandlerFailure wraps an error returned by an operation handler.
func HandlerFailure(operation string, cause error) *DirectiveError {
	return &DirectiveError{
		Code:      CodeHandlerFailure,
		Message:   fmt.Sprintf("operation %q failed", operation),
		Operation: operation,
		Err:       cause,
	}
}
