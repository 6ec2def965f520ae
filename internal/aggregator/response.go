package aggregator

import (
	"encoding/json"
	"net/http"

	"github.com/radhelper/radiation-setup/internal/logger"
)

// statusEnvelope is the JSON shape every status endpoint replies with:
// a status-code/type/result triple, the same sync-response envelope
// shape the daemon's HTTP API uses, trimmed to the subset this
// read-only surface needs (no change/maintenance fields: there is
// nothing asynchronous here).
type statusEnvelope struct {
	StatusCode int         `json:"status-code"`
	Type       string      `json:"type"`
	Result     interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, result interface{}) {
	typ := "sync"
	if status >= 400 {
		typ = "error"
	}
	body, err := json.Marshal(statusEnvelope{StatusCode: status, Type: typ, Result: result})
	if err != nil {
		logger.Noticef("aggregator: marshaling response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
