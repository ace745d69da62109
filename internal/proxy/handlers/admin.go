package handlers

import (
	"log"
	"net/http"

	"github.com/puente-ai/puente/internal/config"
	"github.com/puente-ai/puente/internal/proxy/engine"
	"github.com/puente-ai/puente/internal/version"
)

// HealthHandler is the liveness probe.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.Version,
		})
	}
}

// ReloadConfigHandler re-reads the route file and swaps the table. In-flight
// requests keep the snapshot they resolved against.
func ReloadConfigHandler(table *config.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := table.Reload()
		if err != nil {
			log.Printf("⚠️ Config reload failed: %v", err)
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "config_reload_failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "routes": n})
	}
}
