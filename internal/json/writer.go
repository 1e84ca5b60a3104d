// Package json writes the relay's few machine-readable responses.
package json

import (
	"encoding/json"
	"net/http"

	"github.com/dgellow/mailrelay/internal/log"
)

// StatusResponse is the body of liveness responses
type StatusResponse struct {
	Status string `json:"status"`
}

// WriteResponse writes data as JSON with the given status code.
// Responses are never cached.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// WriteStatus writes {"status": status} with 200 OK
func WriteStatus(w http.ResponseWriter, status string) error {
	return WriteResponse(w, http.StatusOK, StatusResponse{Status: status})
}
