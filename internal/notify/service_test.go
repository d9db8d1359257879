package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/worker"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func newTestService(t *testing.T) (Service, func() []captured) {
	t.Helper()
	server, drain := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	return NewService(&cfg), drain
}

func TestNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("service without topic = %T, want noop", svc)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification: %v", err)
	}
}

func TestNotifyWorkerCompleted(t *testing.T) {
	svc, drain := newTestService(t)
	if err := svc.NotifyWorkerCompleted(context.Background(), "0123456789", "encode"); err != nil {
		t.Fatalf("NotifyWorkerCompleted: %v", err)
	}
	requests := drain()
	if len(requests) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(requests))
	}
	if requests[0].title != "Loom - Worker Complete" {
		t.Fatalf("title = %q", requests[0].title)
	}
	if requests[0].body == "" {
		t.Fatal("empty notification body")
	}
}

func TestNotifyWorkerFailedIsHighPriority(t *testing.T) {
	svc, drain := newTestService(t)
	failure := &worker.Failure{Kind: worker.FailureKindExecution, Message: "boom"}
	if err := svc.NotifyWorkerFailed(context.Background(), "w1", "encode", failure); err != nil {
		t.Fatalf("NotifyWorkerFailed: %v", err)
	}
	requests := drain()
	if len(requests) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(requests))
	}
	if requests[0].priority != "high" {
		t.Fatalf("priority = %q, want high", requests[0].priority)
	}
}

func TestSendRejectsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("send succeeded against a failing server")
	}
}

func TestListenerForwardsTerminalEvents(t *testing.T) {
	svc, drain := newTestService(t)
	listener := Listener(svc)

	now := time.Now().UTC()
	listener(worker.Event{WorkerID: "w1", Task: "encode", Status: worker.StatusRunning, Timestamp: now})
	listener(worker.Event{WorkerID: "w1", Task: "encode", Status: worker.StatusCompleted, Timestamp: now})
	listener(worker.Event{
		WorkerID:  "w2",
		Task:      "encode",
		Status:    worker.StatusError,
		Err:       &worker.Failure{Kind: worker.FailureKindExecution, Message: "boom"},
		Timestamp: now,
	})
	listener(worker.Event{WorkerID: "w3", Task: "encode", Status: worker.StatusCancelled, Timestamp: now})

	requests := drain()
	if len(requests) != 3 {
		t.Fatalf("server saw %d requests, want 3 (running must be skipped)", len(requests))
	}
	titles := []string{requests[0].title, requests[1].title, requests[2].title}
	want := []string{"Loom - Worker Complete", "Loom - Worker Failed", "Loom - Worker Cancelled"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("request %d title = %q, want %q", i, titles[i], want[i])
		}
	}
}
