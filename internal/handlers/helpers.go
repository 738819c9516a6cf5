package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/domus/internal/durable"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// FaultStatus maps a fault kind to its HTTP status code.
func FaultStatus(err error) int {
	switch durable.KindOf(err) {
	case durable.KindValidation:
		return http.StatusBadRequest
	case durable.KindNotFound:
		return http.StatusNotFound
	case durable.KindAlreadyExists:
		return http.StatusConflict
	case durable.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteFault writes a fault as a JSON error response with its mapped status.
func WriteFault(w http.ResponseWriter, err error) error {
	return WriteJSON(w, FaultStatus(err), map[string]string{
		"status": "error",
		"kind":   string(durable.KindOf(err)),
		"error":  err.Error(),
	})
}
