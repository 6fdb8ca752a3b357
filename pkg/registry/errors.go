package registry

import "errors"

// Registry construction errors.
var (
	ErrOperationNameEmpty   = errors.New("operation name cannot be empty")
	ErrParameterNameEmpty   = errors.New("parameter name cannot be empty")
	ErrDuplicateParameter   = errors.New("duplicate parameter")
	ErrInvalidParameterType = errors.New("invalid parameter type")
	ErrHandlerNil           = errors.New("operation handler cannot be nil")
	ErrInvalidDeclaration   = errors.New("invalid tool declaration")
)
