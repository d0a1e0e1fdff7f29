package crud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
)

// Error taxonomy shared by every driver. Feature code matches these with errors.Is and never sees
// driver-specific error types.
var (
	// ErrNotFound covers absent rows and rows outside the caller's tenant; the two are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when an explicit filter or write targets another tenant or organization.
	ErrForbidden = requestcontext.ErrForbidden
	// ErrConflict is a unique or foreign-key violation.
	ErrConflict = errors.New("conflict")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrContextMissing is returned by tenant-aware operations invoked without an established request context.
	ErrContextMissing = requestcontext.ErrContextMissing
	// ErrUnavailable marks transient storage failures; it is the only retryable category.
	ErrUnavailable = errors.New("storage unavailable")
)

// FieldErrors maps fields to validation issues.
type FieldErrors map[string][]string

// Add appends message to field.
func (f FieldErrors) Add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

// ValidationError is returned when input does not match the entity metadata.
type ValidationError struct {
	Entity string
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Fields))
	for field := range v.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(v.Fields[field], ", ")))
	}

	if v.Entity == "" {
		return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
	}
	return fmt.Sprintf("validation failed for %s: %s", v.Entity, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrValidation) match.
func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(entity string, fields map[string]string) *ValidationError {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.Add(key, message)
	}
	return &ValidationError{Entity: entity, Fields: fe}
}

// Conflictf wraps ErrConflict with detail; drivers use it when normalizing constraint violations.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps a transient driver failure as ErrUnavailable without exposing the driver error type.
func Unavailable(cause error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, cause)
}

// StorageError is a driver failure outside the taxonomy. Drivers return it from TranslateError so that
// the message is normalized once, however many layers translate it again.
type StorageError struct {
	Driver string
	Detail string
}

func (e *StorageError) Error() string {
	return e.Driver + ": " + e.Detail
}

// StorageFailure wraps cause as a *StorageError, leaving an existing one untouched.
func StorageFailure(driver string, cause error) error {
	if cause == nil {
		return nil
	}
	var se *StorageError
	if errors.As(cause, &se) {
		return cause
	}
	return &StorageError{Driver: driver, Detail: cause.Error()}
}

// IsRetryable reports whether retrying the same operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func inTaxonomy(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrContextMissing) ||
		errors.Is(err, ErrUnavailable)
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrContextMissing):
		return "context_missing"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// HTTPStatus maps the taxonomy onto stable HTTP status codes, independent of the active driver.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrContextMissing):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
