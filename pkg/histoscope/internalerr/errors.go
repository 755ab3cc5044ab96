package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidEntity     = errors.New("entity has no row evidence")
	ErrEmptySelection    = errors.New("empty selection")
	ErrExtractionFailure = errors.New("extraction failed")
)
