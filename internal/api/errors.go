package api

import (
	"encoding/json"
	"net/http"

	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeSuccess writes the success envelope: {status: "success", message}.
func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": message,
	})
}

// writeError writes the single-message error envelope: {status: "error", error}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status": "error",
		"error":  message,
	})
}

// writeFieldErrors writes the validation envelope: {status: "error"} plus
// one top-level entry per violated field, each holding its message list.
func writeFieldErrors(w http.ResponseWriter, fieldErrs registry.FieldErrors) {
	body := make(map[string]any, len(fieldErrs)+1)
	body["status"] = "error"
	for field, messages := range fieldErrs {
		body[field] = messages
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
