// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for JSON responses. Every body is
// wrapped in the same envelope so clients can tell an empty report from a
// failed one without parsing error strings.

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"orcamento/internal/core"
	"orcamento/internal/log"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Kind      string `json:"kind,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
	now        func() time.Time
}

// NewJSONResponse creates a successful response builder with 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
		now:        time.Now,
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Kind sets the result kind reported to the client.
func (b *JSONResponseBuilder) Kind(kind core.ResultKind) *JSONResponseBuilder {
	b.envelope.Kind = kind.String()
	return b
}

// Data sets the payload.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.envelope.Data = v
	return b
}

// Error marks the response as failed with message.
func (b *JSONResponseBuilder) Error(message string) *JSONResponseBuilder {
	b.envelope.Success = false
	b.envelope.Error = message
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Clock overrides the timestamp source.
func (b *JSONResponseBuilder) Clock(now func() time.Time) *JSONResponseBuilder {
	if now != nil {
		b.now = now
	}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	b.envelope.Timestamp = b.now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(b.envelope)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"encode response"}`))
		return
	}

	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// StatusForKind maps a result kind to its HTTP status. Empty results are
// still a 200: "no data" is a valid answer.
func StatusForKind(kind core.ResultKind) int {
	if kind == core.ResultSourceError {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// ResultResponse builds the response of a service result. Source errors
// carry a generic message; the cause goes to the log only.
func ResultResponse[T any](res core.Result[T]) *JSONResponseBuilder {
	b := NewJSONResponse().Kind(res.Kind).Status(StatusForKind(res.Kind))
	if res.Kind == core.ResultSourceError {
		return b.Error("data source unavailable")
	}
	return b.Data(res.Value)
}

// ErrorResponse creates a failed response with status code.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Error(message)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ServiceUnavailableError creates a 503 response.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// writeResult writes res, logging the cause of a source error.
func writeResult[T any](w http.ResponseWriter, r *http.Request, operation string, res core.Result[T]) {
	if res.Kind == core.ResultSourceError {
		log.FromContext(r.Context()).LogError(r.Context(), "Report source unavailable", res.Err, operation, nil)
	}
	ResultResponse(res).Write(w)
}

// writeFailure logs err and writes a 500.
func writeFailure(w http.ResponseWriter, r *http.Request, operation string, err error) {
	log.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, operation, nil)
	InternalServerError(operation + " failed").Write(w)
}
