package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// ConflictPeriod identifies the existing ban period that blocked a write
type ConflictPeriod struct {
	ID         string  `json:"id"`
	ActiveFrom string  `json:"active_from"`
	ActiveTo   *string `json:"active_to"` // null = permanent
}

// OverlapErrorResponse is the structured rejection for overlapping ban periods
type OverlapErrorResponse struct {
	Error    string         `json:"error"`
	Message  string         `json:"message"`
	Conflict ConflictPeriod `json:"conflict"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteOverlapConflict writes a 409 naming the conflicting ban period so
// the operator can resolve it
func WriteOverlapConflict(w http.ResponseWriter, message, conflictID string, activeFrom time.Time, activeTo *time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)

	conflict := ConflictPeriod{
		ID:         conflictID,
		ActiveFrom: activeFrom.Format(time.RFC3339),
	}
	if activeTo != nil {
		formatted := activeTo.Format(time.RFC3339)
		conflict.ActiveTo = &formatted
	}

	_ = json.NewEncoder(w).Encode(OverlapErrorResponse{
		Error:    "period_overlap",
		Message:  message,
		Conflict: conflict,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
