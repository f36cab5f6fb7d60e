package apiserver

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the generic API error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONResponse encodes data as the JSON response body.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; nothing useful left to do.
			return
		}
	}
}

// writeJSONError sends a JSON-formatted error response.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}
