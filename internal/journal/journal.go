package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"loom/internal/config"
	"loom/internal/events"
	"loom/internal/logging"
	"loom/internal/worker"
)

// ErrLocked reports that another process already owns the journal.
var ErrLocked = errors.New("journal is locked by another process")

const recordTimeout = 5 * time.Second

// Entry is one finished worker run.
type Entry struct {
	ID         int64
	WorkerID   string
	Task       string
	Status     worker.Status
	Result     string
	Failure    string
	RecordedAt time.Time
}

// Stats counts journal entries per terminal status.
type Stats struct {
	Completed int
	Errored   int
	Cancelled int
}

// Total returns the number of recorded runs.
func (s Stats) Total() int { return s.Completed + s.Errored + s.Cancelled }

// Journal persists finished runs backed by SQLite.
type Journal struct {
	db     *sql.DB
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// Open initializes or connects to the journal database, taking an exclusive
// advisory lock so two processes never write the same journal.
func Open(cfg *config.Config, logger *slog.Logger) (*Journal, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire journal lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{
		db:     db,
		path:   dbPath,
		lock:   lock,
		logger: logging.NewComponentLogger(logger, "journal"),
	}
	if err := j.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return j, nil
}

func (j *Journal) applyMigrations(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS run_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        worker_id TEXT NOT NULL,
        task TEXT NOT NULL,
        status TEXT NOT NULL,
        result_json TEXT,
        failure TEXT,
        recorded_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_run_history_status ON run_history(status);`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply journal schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Close closes the database and releases the journal lock.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	if j.lock != nil {
		if unlockErr := j.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// Record persists one terminal lifecycle event. Non-terminal events are
// ignored so the journal only ever holds finished runs.
func (j *Journal) Record(ctx context.Context, evt worker.Event) error {
	if !evt.Status.Terminal() {
		return nil
	}
	recordedAt := evt.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var failure *string
	if evt.Err != nil {
		text := evt.Err.Error()
		if evt.Err.Detail != "" {
			text += " (" + evt.Err.Detail + ")"
		}
		failure = &text
	}
	var result *string
	if len(evt.Result) > 0 {
		text := string(evt.Result)
		result = &text
	}

	_, err := j.db.ExecContext(
		ctx,
		`INSERT INTO run_history (worker_id, task, status, result_json, failure, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		evt.WorkerID,
		evt.Task,
		string(evt.Status),
		result,
		failure,
		recordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit finished runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := j.db.QueryContext(
		ctx,
		`SELECT id, worker_id, task, status, result_json, failure, recorded_at
         FROM run_history ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run history: %w", err)
	}
	return entries, nil
}

// Stats counts recorded runs grouped by terminal status.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM run_history GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("query journal stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan journal stats: %w", err)
		}
		switch worker.Status(status) {
		case worker.StatusCompleted:
			stats.Completed = count
		case worker.StatusError:
			stats.Errored = count
		case worker.StatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate journal stats: %w", err)
	}
	return stats, nil
}

// Clear deletes all recorded runs and reports how many were removed.
func (j *Journal) Clear(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM run_history`)
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

// Listener adapts the journal into an event-bus handler that records every
// terminal event. Write failures are logged, never propagated, so journaling
// problems cannot disturb execution.
func (j *Journal) Listener() events.Handler {
	return func(evt worker.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := j.Record(ctx, evt); err != nil {
			j.logger.Error("failed to record run",
				logging.String(logging.FieldWorkerID, evt.WorkerID),
				logging.Error(err))
		}
	}
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry      Entry
		status     string
		result     sql.NullString
		failure    sql.NullString
		recordedAt string
	)
	if err := rows.Scan(&entry.ID, &entry.WorkerID, &entry.Task, &status, &result, &failure, &recordedAt); err != nil {
		return Entry{}, fmt.Errorf("scan run history row: %w", err)
	}
	entry.Status = worker.Status(status)
	if result.Valid {
		entry.Result = result.String
	}
	if failure.Valid {
		entry.Failure = failure.String
	}
	if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
		entry.RecordedAt = ts
	}
	return entry, nil
}
