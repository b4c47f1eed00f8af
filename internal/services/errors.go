package services

import "errors"

// Validation errors are the only failures surfaced to the caller; every
// other stage failure is degraded inside the orchestrator.
var (
	ErrEmptyQuery   = errors.New("query cannot be empty")
	ErrQueryTooLong = errors.New("query exceeds the maximum length")
)
