package proc_test

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"loom/internal/proc"
	"loom/internal/runqueue"
	"loom/internal/testsupport"
	"loom/internal/worker"
)

func TestMain(m *testing.M) {
	os.Exit(testsupport.RunMain(m.Run))
}

func TestFacadeEndToEnd(t *testing.T) {
	t.Cleanup(proc.ShutdownEvents)
	proc.InitializeEvents()

	var mu sync.Mutex
	byWorker := make(map[string][]worker.Status)
	sub := proc.SubscribeEvents(func(evt worker.Event) {
		mu.Lock()
		byWorker[evt.WorkerID] = append(byWorker[evt.WorkerID], evt.Status)
		mu.Unlock()
	})
	if sub == nil {
		t.Fatal("SubscribeEvents returned nil")
	}

	queue, err := proc.NewQueue(2)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	w, err := proc.NewWorker(testsupport.TaskDouble, []any{8}, nil, nil, true)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := queue.Submit(w); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	queue.Shutdown(true, false)

	res, err := queue.Result(w.ID())
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Status != worker.StatusCompleted {
		t.Fatalf("status = %s (err: %v)", res.Status, res.Err)
	}
	var value int
	if err := res.Decode(&value); err != nil || value != 16 {
		t.Fatalf("result = %d (%v), want 16", value, err)
	}

	// Shutdown drains queued deliveries before returning.
	proc.ShutdownEvents()

	mu.Lock()
	defer mu.Unlock()
	statuses := byWorker[w.ID()]
	if len(statuses) != 2 || statuses[0] != worker.StatusRunning || statuses[1] != worker.StatusCompleted {
		t.Fatalf("event sequence = %v, want [running completed]", statuses)
	}
}

func TestFacadeWorkerWithoutEventsStaysSilent(t *testing.T) {
	t.Cleanup(proc.ShutdownEvents)
	proc.InitializeEvents()

	var count int
	var mu sync.Mutex
	proc.SubscribeEvents(func(worker.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	w, err := proc.NewWorker(testsupport.TaskDouble, []any{1}, nil, nil, false)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !w.Join(30 * time.Second) {
		t.Fatal("worker did not finish")
	}
	proc.ShutdownEvents()

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("silent worker published %d events", count)
	}
}

func TestFacadeCallbackWithoutBus(t *testing.T) {
	// No bus initialized; the callback path must still work.
	done := make(chan worker.Result, 1)
	w, err := proc.NewWorker(testsupport.TaskEcho, []any{"hi"}, nil,
		func(_ *worker.Worker, status worker.Status, res worker.Result) {
			if status.Terminal() {
				done <- res
			}
		}, true)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case res := <-done:
		var msg string
		if err := res.Decode(&msg); err != nil || msg != "hi" {
			t.Fatalf("result = %q (%v), want hi", msg, err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("terminal callback never fired")
	}
}

func TestFacadeQueueValidation(t *testing.T) {
	if _, err := proc.NewQueue(0); !errors.Is(err, runqueue.ErrInvalidLimit) {
		t.Fatalf("NewQueue(0): %v, want ErrInvalidLimit", err)
	}
}

func TestFacadeUnsubscribe(t *testing.T) {
	t.Cleanup(proc.ShutdownEvents)
	sub := proc.SubscribeEvents(func(worker.Event) {})
	if !proc.UnsubscribeEvents(sub) {
		t.Fatal("UnsubscribeEvents reported the subscription unknown")
	}
	if proc.UnsubscribeEvents(sub) {
		t.Fatal("second UnsubscribeEvents reported success")
	}
}
