package services

import "errors"

// Read path errors
var (
	ErrUnknownResultType     = errors.New("unknown result type")
	ErrUnknownDirection      = errors.New("direction not defined for result type")
	ErrResultSetNotFound     = errors.New("result set not found")
	ErrComparisonSetNotFound = errors.New("comparison set not found")
	ErrInvalidComparisonSet  = errors.New("invalid comparison set")
)
