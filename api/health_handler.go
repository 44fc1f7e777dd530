package api

import (
	"net/http"
)

// healthSweep handles POST /api/v1/health/sweep: it runs one health
// check pass immediately instead of waiting for the scheduled sweep.
func (a *API) healthSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := a.eng.Health().Sweep(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// healthz handles GET /healthz for liveness probes.
func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
