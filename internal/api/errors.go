package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/media-pipeline/internal/api/shared"
	"github.com/phrazzld/media-pipeline/internal/dispatch"
	"github.com/phrazzld/media-pipeline/internal/domain"
	"github.com/phrazzld/media-pipeline/internal/events"
	"github.com/phrazzld/media-pipeline/internal/pool"
	"github.com/phrazzld/media-pipeline/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrArtifactNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, events.ErrDeadLetterNotFound):
		return http.StatusNotFound

	case errors.Is(err, events.ErrAlreadyReplayed),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, dispatch.ErrInFlight),
		errors.Is(err, dispatch.ErrNoJob):
		return http.StatusConflict

	case errors.Is(err, dispatch.ErrSaturated),
		errors.Is(err, dispatch.ErrRejected),
		errors.Is(err, pool.ErrRejected),
		errors.Is(err, pool.ErrPoolClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, dispatch.ErrInvalidBatchSize),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, operator-facing error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrArtifactNotFound):
		return "Artifact not found"
	case errors.Is(err, events.ErrDeadLetterNotFound):
		return "Dead letter not found"
	case errors.Is(err, events.ErrAlreadyReplayed):
		return "Dead letter already replayed"
	case errors.Is(err, store.ErrStatusConflict):
		return "Artifact status changed concurrently"
	case errors.Is(err, dispatch.ErrInFlight):
		return "Artifact is already being processed"
	case errors.Is(err, dispatch.ErrNoJob):
		return "No job accepts the artifact in its current status"
	case errors.Is(err, pool.ErrPoolClosed):
		return "Pipeline is shutting down"
	case errors.Is(err, dispatch.ErrSaturated),
		errors.Is(err, dispatch.ErrRejected),
		errors.Is(err, pool.ErrRejected):
		return "Processing capacity exhausted, try again later"
	case errors.Is(err, dispatch.ErrInvalidBatchSize):
		return dispatch.ErrInvalidBatchSize.Error()
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. fallback
// replaces the generic message of unmapped errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example: "Key: 'BatchSizeRequest.BatchSize' Error:Field validation for 'BatchSize' failed on the 'lte' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				if len(fieldParts) >= 5 && fieldParts[3] != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fieldParts[3]))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "gte", "min":
		return "too small"
	case "lte", "max":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
