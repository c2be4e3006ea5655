// Package httpx provides helpers for the action API response envelope.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the wire format every action response uses.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Success sends a success envelope wrapping data.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Status: "success", Data: data})
}

// Error sends an error envelope with the given HTTP status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Status: "error", Message: message})
}

// DecodeJSON decodes the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
