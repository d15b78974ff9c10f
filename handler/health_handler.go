package handler

import (
	"net/http"
)

// HealthCheck reports that the process is up. It does not touch the stores.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "API is healthy and running"})
}
