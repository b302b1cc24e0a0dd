package httpapi

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error      string   `json:"error"`
	Migrations []string `json:"migrations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
