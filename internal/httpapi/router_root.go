package httpapi

import (
	"net/http"
)

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "store is unavailable"})
		return
	}
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleHeartbeat(w http.ResponseWriter, req *http.Request) {
	if r.deps.Heartbeat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "heartbeat is disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Heartbeat.Snapshot(r.deps.HeartbeatStaleAfter))
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	payload := map[string]any{
		"name":           "wabot",
		"version":        r.deps.Version,
		"environment":    r.deps.Config.Environment,
		"timezone":       r.deps.Config.Timezone,
		"command_prefix": r.deps.Config.CommandPrefix,
		"whatsapp":       r.deps.Config.WhatsAppEnabled,
	}
	if r.deps.Store != nil {
		stats, err := r.deps.Store.CountContacts(req.Context())
		if err != nil {
			r.deps.Logger.Warn("count contacts failed", "error", err)
		} else {
			payload["contacts"] = map[string]int{
				"total":   stats.Total,
				"blocked": stats.Blocked,
				"groq":    stats.Groq,
				"gastos":  stats.Gastos,
			}
		}
	}
	writeJSON(w, http.StatusOK, payload)
}
