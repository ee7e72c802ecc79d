package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON payload with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDenied is the single response for every authorization failure:
// invalid, expired or wrong-purpose token, missing or bad bearer. The
// specific reason goes to the audit trail only, so a probing client learns
// nothing from the response.
func writeDenied(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "access denied")
}
