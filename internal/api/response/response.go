package response

import (
	"encoding/json"
	"net/http"
)

// Success bodies are written flat, without a data envelope, so existing
// clients that read task_id and status at the top level keep working.

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, data)
}

// Status writes data with an explicit status code.
func Status(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// Raw writes an already encoded JSON document.
func Raw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
