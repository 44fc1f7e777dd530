package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/api"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/engine"
	"github.com/muhammadiwa/youtube-automation-sub005/store/memory"
)

func newServer(t *testing.T) (*httptest.Server, clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake()
	eng, err := engine.Build(dispatch.DefaultConfig(), memory.New(memory.WithClock(clk)), slog.New(slog.DiscardHandler), engine.WithClock(clk))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	srv := httptest.NewServer(api.New(eng).Handler())
	t.Cleanup(srv.Close)
	return srv, clk
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func registerAgent(t *testing.T, base string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, base+"/api/v1/agents/register", map[string]any{
		"identity":     "agent-1",
		"type":         "transcode",
		"hostname":     "host-1",
		"max_capacity": 5,
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status %d body %v", status, body)
	}
	agentID, _ := body["id"].(string)
	if agentID == "" {
		t.Fatalf("register response missing id: %v", body)
	}

	// Heartbeat brings the agent online so it can receive work.
	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/agents/"+agentID+"/heartbeat", map[string]any{"current_load": 0})
	if status != http.StatusOK {
		t.Fatalf("heartbeat: status %d", status)
	}
	return agentID
}

func TestAgentRegistrationAndHeartbeat(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	agentID := registerAgent(t, srv.URL)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/"+agentID, nil)
	if status != http.StatusOK {
		t.Fatalf("get agent: status %d", status)
	}
	if body["health"] != "healthy" {
		t.Fatalf("agent health = %v, want healthy", body["health"])
	}

	// Validation errors surface as 400.
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/register", map[string]any{"identity": ""})
	if status != http.StatusBadRequest {
		t.Fatalf("empty identity: status %d, want 400", status)
	}

	// Unknown agent heartbeats surface as 404 so the agent re-registers.
	status, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/agents/"+agentID+"/heartbeat", map[string]any{"current_load": 1})
	if status != http.StatusOK {
		t.Fatalf("heartbeat: status %d", status)
	}
	status, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/agents/agt_00000000000000000000000000", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown agent: status %d, want 404", status)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	agentID := registerAgent(t, srv.URL)

	// Submit with immediate dispatch.
	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type":     "transcode",
		"payload":  map[string]any{"video_id": "v1"},
		"dispatch": true,
	})
	if status != http.StatusCreated {
		t.Fatalf("create job: status %d body %v", status, body)
	}
	if body["outcome"] != "dispatched" {
		t.Fatalf("outcome = %v, want dispatched", body["outcome"])
	}
	jobData := body["job"].(map[string]any)
	jobID := jobData["id"].(string)

	// Completion report from the assigned agent.
	status, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/jobs/%s/complete", srv.URL, jobID), map[string]any{
		"agent_id": agentID,
		"report":   map[string]any{"success": true, "result": map[string]any{"output_url": "s3://bucket/v1.mp4"}},
	})
	if status != http.StatusOK {
		t.Fatalf("complete: status %d body %v", status, body)
	}
	completed := body["job"].(map[string]any)
	if completed["status"] != "completed" {
		t.Fatalf("job status = %v, want completed", completed["status"])
	}
	if body["next_job_triggered"] != false {
		t.Fatalf("next_job_triggered = %v, want false", body["next_job_triggered"])
	}

	// Re-dispatching a completed job is a conflict.
	status, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/jobs/%s/dispatch", srv.URL, jobID), nil)
	if status != http.StatusConflict {
		t.Fatalf("dispatch terminal job: status %d, want 409", status)
	}
}

func TestCreateJobWithWorkflowLinks(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	agentID := registerAgent(t, srv.URL)

	status, parent := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type": "transcode",
	})
	if status != http.StatusCreated {
		t.Fatalf("create parent: status %d", status)
	}
	parentID := parent["id"].(string)

	// A job submitted with a parent starts blocked and carries its links.
	status, child := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type":          "relay",
		"workflow_id":   "wf-http",
		"parent_job_id": parentID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create child: status %d", status)
	}
	if child["status"] != "blocked" {
		t.Fatalf("child status = %v, want blocked", child["status"])
	}
	if child["workflow_id"] != "wf-http" || child["parent_job_id"] != parentID {
		t.Fatalf("workflow linkage missing: %v", child)
	}
	childID := child["id"].(string)

	// A job pointing at the blocked one via next_job_id releases it on
	// success, and the completion response says so.
	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type":        "transcode",
		"workflow_id": "wf-http",
		"next_job_id": childID,
		"dispatch":    true,
	})
	if status != http.StatusCreated || body["outcome"] != "dispatched" {
		t.Fatalf("create finisher: status %d outcome %v", status, body["outcome"])
	}
	finisherID := body["job"].(map[string]any)["id"].(string)

	status, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/jobs/%s/complete", srv.URL, finisherID), map[string]any{
		"agent_id": agentID,
		"report":   map[string]any{"success": true},
	})
	if status != http.StatusOK {
		t.Fatalf("complete: status %d body %v", status, body)
	}
	if body["next_job_triggered"] != true || body["next_job_id"] != childID {
		t.Fatalf("successor not reported: %v", body)
	}

	status, released := doJSON(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+childID, nil)
	if status != http.StatusOK || released["status"] != "queued" {
		t.Fatalf("released child: status %d job status %v", status, released["status"])
	}
}

func TestDispatchWithoutAgentsIsDeferredNotAnError(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type":     "transcode",
		"dispatch": true,
	})
	if status != http.StatusCreated {
		t.Fatalf("create job: status %d", status)
	}
	if body["outcome"] != "deferred" || body["reason"] != "no_available_agent" {
		t.Fatalf("got %v/%v, want deferred/no_available_agent", body["outcome"], body["reason"])
	}
}

func TestDLQFlowOverHTTP(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t)
	agentID := registerAgent(t, srv.URL)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/jobs", map[string]any{
		"type":         "transcode",
		"max_attempts": 1,
		"dispatch":     true,
	})
	if status != http.StatusCreated {
		t.Fatalf("create job: status %d", status)
	}
	jobID := body["job"].(map[string]any)["id"].(string)

	// Single failure dead-letters the one-attempt job.
	status, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/jobs/%s/complete", srv.URL, jobID), map[string]any{
		"agent_id": agentID,
		"report":   map[string]any{"success": false, "error": "encoder crashed"},
	})
	deadJob := body["job"].(map[string]any)
	if status != http.StatusOK || deadJob["status"] != "dead_letter" {
		t.Fatalf("complete: status %d job status %v", status, deadJob["status"])
	}

	// An alert was raised and is listable.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/dlq/alerts?pending=true", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	var alerts []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	resp.Body.Close()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	alertID := alerts[0]["id"].(string)

	// Acknowledge, then requeue the job with a fresh budget.
	status, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/dlq/alerts/%s/ack", srv.URL, alertID), map[string]any{"by": "operator"})
	if status != http.StatusOK || body["acknowledged"] != true {
		t.Fatalf("ack: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/dlq/requeue", map[string]any{
		"job_ids":        []string{jobID},
		"reset_attempts": true,
	})
	if status != http.StatusOK {
		t.Fatalf("requeue: status %d", status)
	}
	requeued := body["requeued"].([]any)
	if len(requeued) != 1 {
		t.Fatalf("requeued %d jobs, want 1", len(requeued))
	}
	if requeued[0].(map[string]any)["status"] != "queued" {
		t.Fatalf("requeued job status = %v", requeued[0].(map[string]any)["status"])
	}
}

func TestHealthSweepAndStatsOverHTTP(t *testing.T) {
	t.Parallel()
	srv, clk := newServer(t)
	registerAgent(t, srv.URL)

	clk.Advance(2 * time.Minute)

	status, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/health/sweep", nil)
	if status != http.StatusOK {
		t.Fatalf("sweep: status %d", status)
	}
	if body["unhealthy_count"] != float64(1) {
		t.Fatalf("sweep summary = %v", body)
	}

	status, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats: status %d", status)
	}
	agents := body["agents"].(map[string]any)
	if agents["unhealthy"] != float64(1) {
		t.Fatalf("stats agents = %v", agents)
	}

	status, _ = doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz: status %d", status)
	}
}
