// Package respond writes the broker's JSON responses. Failures and most
// API results use the envelope {"status": <code>, "data": <payload>} so
// clients can discriminate on status without reading the HTTP line.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body shape shared by every API endpoint.
type Envelope struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Wrap writes data inside an Envelope carrying status.
func Wrap(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Envelope{Status: status, Data: data})
}
