package types

import "errors"

// Failure kinds reported by the engine. Each terminates the query pipeline
// that raised it; callers match with errors.Is. NULL propagation is normal
// three-valued-logic behavior and is never reported through these.
var (
	ErrUnresolvedColumn  = errors.New("unresolved column")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrInvalidProjection = errors.New("invalid projection")
	ErrCardinality       = errors.New("scalar subquery returned more than one row")
	ErrRecursionLimit    = errors.New("recursion limit exceeded")
	ErrCancelled         = errors.New("query cancelled")
)
