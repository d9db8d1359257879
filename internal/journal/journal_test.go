package journal_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"loom/internal/journal"
	"loom/internal/logging"
	"loom/internal/testsupport"
	"loom/internal/worker"
)

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	j, err := journal.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func terminalEvent(id string, status worker.Status) worker.Event {
	evt := worker.Event{
		WorkerID:  id,
		Task:      "demo",
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	switch status {
	case worker.StatusCompleted:
		evt.Result = json.RawMessage(`{"answer":42}`)
	case worker.StatusError:
		evt.Err = &worker.Failure{Kind: worker.FailureKindExecution, Message: "boom"}
	}
	return evt
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, terminalEvent("w1", worker.StatusCompleted)); err != nil {
		t.Fatalf("Record completed: %v", err)
	}
	if err := j.Record(ctx, terminalEvent("w2", worker.StatusError)); err != nil {
		t.Fatalf("Record errored: %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].WorkerID != "w2" || entries[1].WorkerID != "w1" {
		t.Fatalf("order = %s, %s; want w2, w1", entries[0].WorkerID, entries[1].WorkerID)
	}
	if entries[1].Result != `{"answer":42}` {
		t.Fatalf("completed entry result = %q", entries[1].Result)
	}
	if entries[0].Failure == "" {
		t.Fatal("errored entry has no failure text")
	}
	if entries[0].RecordedAt.IsZero() {
		t.Fatal("entry has no recorded timestamp")
	}
}

func TestJournalIgnoresNonTerminalEvents(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	for _, status := range []worker.Status{worker.StatusPending, worker.StatusRunning} {
		if err := j.Record(ctx, terminalEvent("w1", status)); err != nil {
			t.Fatalf("Record %s: %v", status, err)
		}
	}
	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("non-terminal events were recorded: %v", entries)
	}
}

func TestJournalStatsAndClear(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := j.Record(ctx, terminalEvent("w", worker.StatusCompleted)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := j.Record(ctx, terminalEvent("w", worker.StatusCancelled)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	stats, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Completed != 3 || stats.Cancelled != 1 || stats.Errored != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Total() != 4 {
		t.Fatalf("total = %d, want 4", stats.Total())
	}

	removed, err := j.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 4 {
		t.Fatalf("Clear removed %d, want 4", removed)
	}
	stats, err = j.Stats(ctx)
	if err != nil || stats.Total() != 0 {
		t.Fatalf("stats after clear = %+v, %v", stats, err)
	}
}

func TestJournalListener(t *testing.T) {
	j := openJournal(t)
	listener := j.Listener()

	listener(terminalEvent("w1", worker.StatusRunning))
	listener(terminalEvent("w2", worker.StatusCompleted))

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].WorkerID != "w2" {
		t.Fatalf("listener recorded %v, want only w2", entries)
	}
}

func TestJournalSingleWriter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := journal.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	if _, err := journal.Open(cfg, logging.NewNop()); !errors.Is(err, journal.ErrLocked) {
		t.Fatalf("second Open: %v, want ErrLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := journal.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	_ = second.Close()
}
