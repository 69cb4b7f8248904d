package domain

import "errors"

// Common domain errors used across the pipeline.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidStatus is returned when a processing status is not recognized.
	ErrInvalidStatus = errors.New("invalid processing status")

	// ErrInvalidTransition is returned when a status change would move an
	// artifact backwards within a processing pass.
	ErrInvalidTransition = errors.New("invalid status transition")
)
