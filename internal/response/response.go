// Package response writes the JSON envelope shared by the admin API.
package response

import (
	"encoding/json"
	"net/http"
)

// Envelope wraps every admin API body. Kind is set on failures that carry a
// machine-readable error class.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// JSON encodes payload with status. Envelopes describe mutable state, so
// they are never cached.
func JSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 envelope around data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope around data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Failure writes a failed envelope. data may hold partial results.
func Failure(w http.ResponseWriter, status int, kind, message string, data any) {
	JSON(w, status, Envelope{Error: message, Kind: kind, Data: data})
}

// BadRequest writes a 400 without a kind.
func BadRequest(w http.ResponseWriter, message string) {
	Failure(w, http.StatusBadRequest, "", message, nil)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	Failure(w, http.StatusUnauthorized, "", message, nil)
}

// InternalError writes a 500 that never reveals the cause.
func InternalError(w http.ResponseWriter) {
	Failure(w, http.StatusInternalServerError, "", "internal server error", nil)
}
