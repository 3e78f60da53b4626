// internal/handlers/errors.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// APIError is a Discord-style error body.
type APIError struct {
	Status  int                    `json:"-"`
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Errors  map[string]FieldErrors `json:"errors,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// FieldErrors lists the problems with a single request field.
type FieldErrors struct {
	Errors []FieldError `json:"_errors"`
}

// FieldError is one validation failure.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	ErrUnauthorized       = &APIError{Status: http.StatusUnauthorized, Code: 0, Message: "401: Unauthorized"}
	ErrUnknownChannel     = &APIError{Status: http.StatusNotFound, Code: 10003, Message: "Unknown Channel"}
	ErrUnknownMember      = &APIError{Status: http.StatusNotFound, Code: 10007, Message: "Unknown Member"}
	ErrUnknownLobby       = &APIError{Status: http.StatusNotFound, Code: 10031, Message: "Unknown Lobby"}
	ErrMissingPermissions = &APIError{Status: http.StatusForbidden, Code: 50013, Message: "Missing Permissions"}
	ErrInternal           = &APIError{Status: http.StatusInternalServerError, Code: 0, Message: "500: Internal Server Error"}
)

// invalidForm builds a 50035 error for a single field.
func invalidForm(field, code, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    50035,
		Message: "Invalid Form Body",
		Errors: map[string]FieldErrors{
			field: {Errors: []FieldError{{Code: code, Message: message}}},
		},
	}
}

// writeError sends e as JSON with its HTTP status.
func writeError(w http.ResponseWriter, e *APIError) {
	writeJSON(w, e.Status, e)
}

// writeJSON sends v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
