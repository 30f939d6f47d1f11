package httputils

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON envelope for every error answer.
type ErrorBody struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code string, details json.RawMessage) {
	WriteJSON(w, status, ErrorBody{Error: code, Details: details})
}
