package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
)

const problemBase = "https://palmyra.pro/problems/"

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func problemFor(err error) Problem {
	status := crud.HTTPStatus(err)
	p := Problem{Status: status}

	switch status {
	case http.StatusBadRequest:
		p.Type, p.Title, p.Detail = problemBase+"validation-error", "Validation failed", "one or more fields are invalid"
		var validationErr *crud.ValidationError
		if errors.As(err, &validationErr) && len(validationErr.Fields) > 0 {
			p.Errors = make(map[string][]string, len(validationErr.Fields))
			for field, messages := range validationErr.Fields {
				p.Errors[field] = append([]string(nil), messages...)
			}
		}
	case http.StatusNotFound:
		p.Type, p.Title, p.Detail = problemBase+"not-found", "Resource not found", "resource not found"
	case http.StatusForbidden:
		p.Type, p.Title, p.Detail = problemBase+"forbidden", "Forbidden", "operation not permitted for the current tenant"
	case http.StatusConflict:
		p.Type, p.Title, p.Detail = problemBase+"conflict", "Conflict", "resource conflicts with existing data"
	case http.StatusUnauthorized:
		p.Type, p.Title, p.Detail = problemBase+"unauthorized", "Unauthorized", "tenant context required"
	case http.StatusServiceUnavailable:
		p.Type, p.Title, p.Detail = problemBase+"unavailable", "Service unavailable", "storage temporarily unavailable"
	case http.StatusGatewayTimeout:
		p.Type, p.Title, p.Detail = problemBase+"timeout", "Timeout", "request timed out"
	default:
		p.Type, p.Title, p.Detail = problemBase+"internal-error", "Internal server error", "an unexpected error occurred"
	}
	return p
}

// Error classifies err, logs it at a severity matching the status and writes a problem+json response.
// Internal error text never reaches the client.
func Error(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, op string, err error) {
	p := problemFor(err)

	logger := platformlogging.FromRequest(r, fallback)
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{zap.String("operation", op), zap.Int("status", p.Status), zap.Error(err)}
	switch {
	case p.Status >= http.StatusInternalServerError:
		logger.Error("operation failed", fields...)
	case p.Status == http.StatusNotFound:
		logger.Info("resource not found", fields...)
	default:
		logger.Warn("request rejected", fields...)
	}

	WriteProblem(w, p)
}

// BadRequest writes a 400 problem for input the handler rejects before reaching a service.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, Problem{
		Type:   problemBase + "validation-error",
		Title:  "Invalid request",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}

// WriteProblem encodes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
