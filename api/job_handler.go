package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/completion"
	"github.com/muhammadiwa/youtube-automation-sub005/dispatcher"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// CreateJobRequest is the body for job submission.
type CreateJobRequest struct {
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	AgentType   agent.Type     `json:"agent_type,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	// WorkflowID tags the job as part of a workflow chain.
	WorkflowID string `json:"workflow_id,omitempty"`
	// NextJobID links the job released when this one completes.
	NextJobID id.JobID `json:"next_job_id,omitempty"`
	// ParentJobID blocks the job until the given parent completes.
	ParentJobID id.JobID `json:"parent_job_id,omitempty"`
	// Dispatch requests immediate assignment. Without it the job waits
	// for the next dispatch sweep.
	Dispatch bool `json:"dispatch,omitempty"`
}

func (req CreateJobRequest) options() []job.Option {
	var opts []job.Option
	if req.Priority != 0 {
		opts = append(opts, job.WithPriority(req.Priority))
	}
	if req.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(req.MaxAttempts))
	}
	if req.AgentType != "" {
		opts = append(opts, job.WithAgentType(req.AgentType))
	}
	if req.ScheduledAt != nil {
		opts = append(opts, job.WithScheduledAt(*req.ScheduledAt))
	}
	if req.WorkflowID != "" {
		opts = append(opts, job.WithWorkflow(req.WorkflowID))
	}
	if !req.NextJobID.IsNil() {
		opts = append(opts, job.WithNextJob(req.NextJobID))
	}
	if !req.ParentJobID.IsNil() {
		opts = append(opts, job.WithParent(req.ParentJobID))
	}
	return opts
}

// createJob handles POST /api/v1/jobs.
func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CreateJobRequest](w, r)
	if !ok {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	if req.Dispatch {
		res, err := a.eng.Dispatcher().CreateAndDispatch(r.Context(), req.Type, req.Payload, req.options()...)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
		return
	}

	j, err := a.eng.Dispatcher().Enqueue(r.Context(), req.Type, req.Payload, req.options()...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// listJobs handles GET /api/v1/jobs?status=&type=&limit=&offset=.
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	status := job.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = job.StatusQueued
	}
	opts := job.ListOpts{Type: r.URL.Query().Get("type")}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := a.eng.Store().ListJobsByStatus(r.Context(), status, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// getJob handles GET /api/v1/jobs/{jobID}.
func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, err := a.eng.Store().GetJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// dispatchJob handles POST /api/v1/jobs/{jobID}/dispatch.
// A dispatch with no available agent succeeds with a deferred result;
// the job simply stays queued.
func (a *API) dispatchJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	res, err := a.eng.Dispatcher().Dispatch(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CompleteJobRequest is the body of a completion report.
type CompleteJobRequest struct {
	AgentID string            `json:"agent_id"`
	Report  completion.Report `json:"report"`
}

// CompleteJobResponse reports the finished job and whether its
// successor in a workflow chain was released for dispatch.
type CompleteJobResponse struct {
	Job              *job.Job `json:"job"`
	NextJobTriggered bool     `json:"next_job_triggered"`
	NextJobID        id.JobID `json:"next_job_id,omitempty"`
}

// completeJob handles POST /api/v1/jobs/{jobID}/complete.
func (a *API) completeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	req, ok := readJSON[CompleteJobRequest](w, r)
	if !ok {
		return
	}
	agentID, err := id.ParseAgentID(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	j, err := a.eng.Completions().Complete(r.Context(), jobID, agentID, req.Report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CompleteJobResponse{Job: j}
	if j.Status == job.StatusCompleted && !j.NextJobID.IsNil() {
		resp.NextJobTriggered = true
		resp.NextJobID = j.NextJobID
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateWorkflowRequest is the body for linear chain submission.
type CreateWorkflowRequest struct {
	WorkflowID string             `json:"workflow_id"`
	Steps      []CreateJobRequest `json:"steps"`
}

// createWorkflow handles POST /api/v1/workflows.
func (a *API) createWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[CreateWorkflowRequest](w, r)
	if !ok {
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}
	if len(req.Steps) == 0 {
		writeError(w, http.StatusBadRequest, "steps are required")
		return
	}

	steps := make([]dispatcher.ChainStep, len(req.Steps))
	for i, s := range req.Steps {
		if s.Type == "" {
			writeError(w, http.StatusBadRequest, "step type is required")
			return
		}
		steps[i] = dispatcher.ChainStep{Type: s.Type, Payload: s.Payload, Opts: s.options()}
	}

	jobs, err := a.eng.Dispatcher().EnqueueChain(r.Context(), req.WorkflowID, steps...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jobs)
}
