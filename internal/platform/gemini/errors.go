package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the analyzer cannot be configured.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyAudio is returned when there is nothing to analyse.
	ErrEmptyAudio = errors.New("audio cannot be empty")

	// ErrInvalidResponse is returned when the API answered with something
	// that cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from gemini")

	// ErrContentBlocked is returned when safety filters blocked the answer.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure is returned when the API kept failing until the
	// retry budget ran out.
	ErrTransientFailure = errors.New("transient gemini failure")
)
