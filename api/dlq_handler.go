package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// listDeadLetterJobs handles GET /api/v1/dlq/jobs.
func (a *API) listDeadLetterJobs(w http.ResponseWriter, r *http.Request) {
	opts := job.ListOpts{Type: r.URL.Query().Get("type")}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := a.eng.DLQ().ListDeadLetterJobs(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// listAlerts handles GET /api/v1/dlq/alerts?pending=true.
func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		PendingOnly: r.URL.Query().Get("pending") == "true",
	}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	alerts, err := a.eng.DLQ().Alerts().ListAlerts(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// AcknowledgeRequest is the body of an alert acknowledgement.
type AcknowledgeRequest struct {
	By string `json:"by"`
}

// acknowledgeAlert handles POST /api/v1/dlq/alerts/{alertID}/ack.
// Acknowledging twice is a no-op, not an error.
func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	req, ok := readJSON[AcknowledgeRequest](w, r)
	if !ok {
		return
	}

	alert, err := a.eng.DLQ().Acknowledge(r.Context(), alertID, req.By)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ProcessAlertsResponse reports one alert delivery sweep.
type ProcessAlertsResponse struct {
	Delivered int `json:"delivered"`
}

// processAlerts handles POST /api/v1/dlq/alerts/process: it delivers
// pending alerts over the configured channels immediately instead of
// waiting for the next scheduled sweep.
func (a *API) processAlerts(w http.ResponseWriter, r *http.Request) {
	delivered, err := a.eng.DLQ().ProcessPendingAlerts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessAlertsResponse{Delivered: delivered})
}

// RequeueRequest is the body of a DLQ requeue call.
type RequeueRequest struct {
	JobIDs        []string `json:"job_ids"`
	ResetAttempts bool     `json:"reset_attempts"`
}

// RequeueResponse reports which jobs went back to the queue.
type RequeueResponse struct {
	Requeued []*job.Job `json:"requeued"`
	Failed   []string   `json:"failed,omitempty"`
}

// requeueJobs handles POST /api/v1/dlq/requeue.
func (a *API) requeueJobs(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[RequeueRequest](w, r)
	if !ok {
		return
	}
	if len(req.JobIDs) == 0 {
		writeError(w, http.StatusBadRequest, "job_ids are required")
		return
	}

	resp := RequeueResponse{}
	for _, raw := range req.JobIDs {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			resp.Failed = append(resp.Failed, raw)
			continue
		}
		j, err := a.eng.DLQ().Requeue(r.Context(), jobID, req.ResetAttempts)
		if err != nil {
			resp.Failed = append(resp.Failed, raw)
			continue
		}
		resp.Requeued = append(resp.Requeued, j)
	}
	writeJSON(w, http.StatusOK, resp)
}
