// Package http exposes the ledger services as a JSON REST API under /api/v1.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping from domain error kinds to status codes.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"famfinance/internal/auth"
	"famfinance/internal/core"
	"famfinance/internal/log"
	"famfinance/internal/middleware/trace"
)

// Error codes carried in the "error" field of every error body.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeForbidden    = "FORBIDDEN"
	CodeBusinessRule = "BUSINESS_RULE_VIOLATION"
	CodeAuth         = "AUTH_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeTooLarge     = "PAYLOAD_TOO_LARGE"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
	empty      bool
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// NoContent drops the body and switches to 204.
func (b *JSONResponseBuilder) NoContent() *JSONResponseBuilder {
	b.empty = true
	b.statusCode = http.StatusNoContent
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.empty {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.data)
	if err != nil {
		slog.Error("Encode response failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"INTERNAL_ERROR","message":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// ErrorResponse creates an error response with the given code and message.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: code, Message: message})
}

// BadRequestError creates a 400 response for requests that cannot be read.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// ValidationError creates a 422 Unprocessable Entity response.
func ValidationError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, CodeValidation, message)
}

// InternalServerError creates a 500 response. The message never carries
// error details.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, "an unexpected error occurred")
}

// StatusForKind maps a domain error kind to its HTTP status and code.
func StatusForKind(kind core.Kind) (int, string) {
	switch kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity, CodeValidation
	case core.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case core.KindConflict:
		return http.StatusConflict, CodeConflict
	case core.KindAuthorization:
		return http.StatusForbidden, CodeForbidden
	case core.KindBusinessRule:
		return http.StatusBadRequest, CodeBusinessRule
	case core.KindAuthentication:
		return http.StatusUnauthorized, CodeAuth
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ErrorFrom builds the response for err. Errors outside the domain taxonomy
// are logged and reported as INTERNAL_ERROR.
func ErrorFrom(r *http.Request, err error) *JSONResponseBuilder {
	var domainErr *core.Error
	if !errors.As(err, &domainErr) || domainErr.Kind == core.KindInternal {
		logger := log.FromContext(r.Context())
		fields := log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
			WithErrorType(rootType(err))
		if ip := trace.GetClientIP(r.Context()); ip != "" {
			fields = fields.WithClientIP(ip)
		}
		if id, ok := auth.FromContext(r.Context()); ok {
			fields = fields.WithTenant(id.FamilyID, id.UserID)
		}
		log.NewStructuredLogger(logger).
			LogError(r.Context(), "Request failed", err, logger.Component(), r.Method+" "+r.URL.Path, fields)
		return InternalServerError()
	}
	status, code := StatusForKind(domainErr.Kind)
	b := ErrorResponse(status, code, core.MessageOf(err))
	if status == http.StatusUnauthorized {
		b.Header("WWW-Authenticate", "Bearer")
	}
	return b
}

// rootType names the type of the innermost wrapped error.
func rootType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

// writeError is shorthand for ErrorFrom(r, err).Write(w).
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ErrorFrom(r, err).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w)
}
