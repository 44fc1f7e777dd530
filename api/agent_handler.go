package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// registerAgent handles POST /api/v1/agents/register.
// Registration is idempotent per identity: re-registering refreshes the
// agent's capacity and metadata without duplicating it.
func (a *API) registerAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.RegisterRequest](w, r)
	if !ok {
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if req.MaxCapacity < 1 {
		writeError(w, http.StatusBadRequest, "max_capacity must be at least 1")
		return
	}

	ag, err := a.eng.Agents().Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ag)
}

// HeartbeatRequest is the body of a heartbeat call.
type HeartbeatRequest struct {
	CurrentLoad int               `json:"current_load"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// heartbeat handles POST /api/v1/agents/{agentID}/heartbeat.
func (a *API) heartbeat(w http.ResponseWriter, r *http.Request) {
	agentID, err := id.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	req, ok := readJSON[HeartbeatRequest](w, r)
	if !ok {
		return
	}

	ack, err := a.eng.Agents().Heartbeat(r.Context(), agentID, req.CurrentLoad, req.Metadata)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// listAgents handles GET /api/v1/agents.
func (a *API) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.eng.Agents().List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// getAgent handles GET /api/v1/agents/{agentID}.
func (a *API) getAgent(w http.ResponseWriter, r *http.Request) {
	agentID, err := id.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	ag, err := a.eng.Agents().Get(r.Context(), agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ag)
}
