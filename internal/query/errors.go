package query

import "errors"

var (
	ErrInvalidQuery        = errors.New("query: invalid query")
	ErrUnsupportedOperator = errors.New("query: unsupported operator")
	ErrQueryError          = errors.New("query: evaluation error")
	ErrInvalidUpdateSpec   = errors.New("query: invalid update specification")
	ErrImmutableField      = errors.New("query: field is immutable")
)
