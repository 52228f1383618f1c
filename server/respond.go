package server

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Errors: []apiError{{Message: message}}})
}
