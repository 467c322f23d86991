package schema

import "errors"

// Error variables for validation.
var (
	ErrInvalidSchema = errors.New("invalid schema")
	ErrInvalid       = errors.New("validation failed")
)
