// Package apierr defines the error taxonomy shared by the registration flow.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldError is a single field violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that violated the registration schema.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, ", ")
}

// Has reports whether the given field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// RemoteAPIError is returned when a third-party provider answers with a non-success status.
type RemoteAPIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

// ConfigurationError is returned when credentials or identifiers are missing from the environment.
type ConfigurationError struct {
	Provider string
	Missing  []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s no configurado: faltan %s", e.Provider, strings.Join(e.Missing, ", "))
}

// HTTPStatus maps an error to the status code surfaced to the caller.
// Provider statuses are preserved when they are valid error codes; everything else is a 500.
func HTTPStatus(err error) int {
	var remote *RemoteAPIError
	if errors.As(err, &remote) && remote.StatusCode >= 400 && remote.StatusCode <= 599 {
		return remote.StatusCode
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
