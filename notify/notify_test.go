package notify_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/notify"
)

func testAlert() *dlq.Alert {
	return &dlq.Alert{
		Entity:       dispatch.NewEntityAt(time.Now().UTC()),
		ID:           id.NewAlertID(),
		JobID:        id.NewJobID(),
		JobType:      "transcode",
		ErrorMessage: "encoder crashed",
		Attempts:     3,
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	t.Parallel()
	n := notify.NewLogNotifier(slog.New(slog.DiscardHandler))
	if n.Name() != "log" {
		t.Fatalf("got name %q", n.Name())
	}
	if err := n.Send(context.Background(), testAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	t.Parallel()
	a := testAlert()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, nil)
	if err := n.Send(context.Background(), a); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got["job_id"] != a.JobID.String() {
		t.Fatalf("payload job_id = %v, want %s", got["job_id"], a.JobID)
	}
	if got["job_type"] != "transcode" || got["error_message"] != "encoder crashed" {
		t.Fatalf("payload incomplete: %v", got)
	}
	if got["attempts"] != float64(3) {
		t.Fatalf("payload attempts = %v, want 3", got["attempts"])
	}
}

func TestWebhookNotifierFailsOnErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := notify.NewWebhookNotifier(srv.URL, nil)
	if err := n.Send(context.Background(), testAlert()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
