package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"loom/internal/logging"
)

// DefaultGracePeriod is how long a cancelled worker gets to exit after
// SIGTERM before the process group is force-killed.
const DefaultGracePeriod = 5 * time.Second

// Result is a point-in-time snapshot of a worker's outcome. Value is set
// only on completed workers, Err only on errored ones.
type Result struct {
	Status     Status
	Value      json.RawMessage
	Err        *Failure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Decode unmarshals the completed result value into dst.
func (r Result) Decode(dst any) error {
	if r.Status != StatusCompleted {
		return fmt.Errorf("worker did not complete (status %s)", r.Status)
	}
	if len(r.Value) == 0 {
		return fmt.Errorf("worker produced no result value")
	}
	return json.Unmarshal(r.Value, dst)
}

// Event is an immutable lifecycle snapshot published to observers. It copies
// everything it needs so the worker may keep mutating after emission.
type Event struct {
	WorkerID  string
	Task      string
	Status    Status
	Result    json.RawMessage
	Err       *Failure
	Timestamp time.Time
}

// EventPublisher delivers lifecycle events to subscribers. Publish must not
// block the caller.
type EventPublisher interface {
	Publish(Event)
}

// Callback receives lifecycle transitions. It is invoked from the worker's
// monitoring goroutine (or the caller of Cancel for pending workers), never
// from inside the child process.
type Callback func(w *Worker, status Status, res Result)

// Options describes worker construction parameters.
type Options struct {
	// Task names a function registered in the default registry of both this
	// process and the re-executed child.
	Task string
	// Args and Kwargs must be JSON-marshalable; anything else fails
	// construction with ErrTransfer.
	Args   []any
	Kwargs map[string]any

	Callback      Callback
	PublishEvents bool
	Publisher     EventPublisher
	GracePeriod   time.Duration
	Logger        *slog.Logger
}

// Worker runs a single registered task in an isolated child process.
type Worker struct {
	id            string
	task          string
	args          []json.RawMessage
	kwargs        map[string]json.RawMessage
	callback      Callback
	publishEvents bool
	publisher     EventPublisher
	grace         time.Duration
	logger        *slog.Logger

	mu              sync.Mutex
	status          Status
	result          json.RawMessage
	failure         *Failure
	startedAt       time.Time
	finishedAt      time.Time
	cancelRequested bool
	cmd             *exec.Cmd
	done            chan struct{}
}

// New validates the task reference and arguments and builds a pending worker.
func New(opts Options) (*Worker, error) {
	task := strings.TrimSpace(opts.Task)
	if task == "" {
		return nil, fmt.Errorf("task name is required")
	}
	args, err := encodeArgs(opts.Args)
	if err != nil {
		return nil, err
	}
	kwargs, err := encodeKwargs(opts.Kwargs)
	if err != nil {
		return nil, err
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		id:            uuid.NewString(),
		task:          task,
		args:          args,
		kwargs:        kwargs,
		callback:      opts.Callback,
		publishEvents: opts.PublishEvents,
		publisher:     opts.Publisher,
		grace:         grace,
		status:        StatusPending,
		done:          make(chan struct{}),
	}
	w.logger = logging.NewComponentLogger(logger, "worker").With(
		logging.String(logging.FieldWorkerID, w.id),
		logging.String(logging.FieldTask, task),
	)
	return w, nil
}

// ID returns the worker's immutable identity.
func (w *Worker) ID() string { return w.id }

// Task returns the registered task name this worker executes.
func (w *Worker) Task() string { return w.task }

// Status returns the current lifecycle status.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Result returns a snapshot of the current status and outcome without
// blocking. Before a terminal state both Value and Err are unset.
func (w *Worker) Result() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Worker) snapshotLocked() Result {
	return Result{
		Status:     w.status,
		Value:      w.result,
		Err:        w.failure,
		StartedAt:  w.startedAt,
		FinishedAt: w.finishedAt,
	}
}

// Done returns a channel closed when the worker reaches a terminal state.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Join blocks until the worker is terminal or the timeout elapses. A zero or
// negative timeout waits indefinitely. It reports whether the worker
// terminated.
func (w *Worker) Join(timeout time.Duration) bool {
	if timeout <= 0 {
		<-w.done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return true
	case <-timer.C:
		return false
	}
}

// Start transitions the worker to running and spawns the child process. It
// returns ErrNotPending when the worker already left the pending state.
func (w *Worker) Start() error {
	w.mu.Lock()
	if w.status != StatusPending {
		status := w.status
		w.mu.Unlock()
		return fmt.Errorf("%w: worker %s is %s", ErrNotPending, w.id, status)
	}

	cmd, stdout, stderr, err := w.spawn()
	if err != nil {
		w.status = StatusError
		w.failure = newFailure(FailureKindSpawn, "spawn worker process", err)
		w.finishedAt = time.Now().UTC()
		close(w.done)
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.logger.Error("worker spawn failed", logging.Error(err))
		w.announce(snap)
		return fmt.Errorf("start worker %s: %w", w.id, err)
	}

	w.cmd = cmd
	w.status = StatusRunning
	w.startedAt = time.Now().UTC()
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.logger.Debug("worker started", logging.Int("pid", cmd.Process.Pid))
	w.announce(snap)
	go w.monitor(stdout, stderr)
	return nil
}

func (w *Worker) spawn() (*exec.Cmd, io.ReadCloser, *tailBuffer, error) {
	body, err := json.Marshal(payload{Task: w.task, Args: w.args, Kwargs: w.kwargs})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: encode task payload: %v", ErrTransfer, err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), childEnvVar+"=1")
	cmd.Stdin = bytes.NewReader(body)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("start process: %w", err)
	}
	return cmd, stdout, stderr, nil
}

// monitor reads the child's result frame, reaps the process, and resolves
// the terminal state.
func (w *Worker) monitor(stdout io.ReadCloser, stderr *tailBuffer) {
	var frame resultFrame
	decodeErr := json.NewDecoder(stdout).Decode(&frame)
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := w.cmd.Wait()

	w.mu.Lock()
	cancelled := w.cancelRequested
	w.mu.Unlock()

	switch {
	case decodeErr == nil:
		switch frame.Outcome {
		case outcomeCompleted:
			w.finish(StatusCompleted, frame.Result, nil)
		case outcomeCancelled:
			w.finish(StatusCancelled, nil, nil)
		case outcomeError:
			failure := frame.Failure
			if failure == nil {
				failure = newFailure(FailureKindExecution, "worker reported an unspecified error", nil)
			}
			w.finish(StatusError, nil, failure)
		default:
			w.finish(StatusError, nil, newFailure(FailureKindExecution,
				fmt.Sprintf("unrecognized result outcome %q", frame.Outcome), nil))
		}
	case cancelled:
		w.finish(StatusCancelled, nil, nil)
	default:
		failure := newFailure(FailureKindExit, "worker exited without a result", waitErr)
		if tail := stderr.String(); tail != "" {
			if failure.Detail != "" {
				failure.Detail += "; "
			}
			failure.Detail += "stderr: " + tail
		}
		w.finish(StatusError, nil, failure)
	}
}

func (w *Worker) finish(status Status, result json.RawMessage, failure *Failure) {
	w.mu.Lock()
	if w.status.Terminal() {
		w.mu.Unlock()
		return
	}
	w.status = status
	w.result = result
	w.failure = failure
	w.finishedAt = time.Now().UTC()
	close(w.done)
	snap := w.snapshotLocked()
	w.mu.Unlock()

	switch status {
	case StatusError:
		w.logger.Warn("worker failed", logging.Error(failure))
	default:
		w.logger.Debug("worker finished", logging.String("status", string(status)))
	}
	w.announce(snap)
}

// Cancel requests termination. Pending workers become cancelled immediately;
// running workers receive SIGTERM on their process group and are force-killed
// after the grace period. It reports whether the request had any effect.
func (w *Worker) Cancel() bool {
	w.mu.Lock()
	switch w.status {
	case StatusPending:
		w.status = StatusCancelled
		w.finishedAt = time.Now().UTC()
		close(w.done)
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.logger.Debug("worker cancelled before start")
		w.announce(snap)
		return true
	case StatusRunning:
		if w.cancelRequested {
			w.mu.Unlock()
			return true
		}
		w.cancelRequested = true
		cmd := w.cmd
		w.mu.Unlock()
		w.logger.Debug("worker cancellation requested", logging.Duration("grace", w.grace))
		w.signal(cmd, unix.SIGTERM)
		go w.enforceGrace(cmd)
		return true
	default:
		w.mu.Unlock()
		return false
	}
}

func (w *Worker) enforceGrace(cmd *exec.Cmd) {
	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
		w.logger.Warn("worker ignored termination request, killing",
			logging.Duration("grace", w.grace))
		w.signal(cmd, unix.SIGKILL)
	}
}

// signal targets the child's process group so grandchildren die with it.
func (w *Worker) signal(cmd *exec.Cmd, sig unix.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		if err := unix.Kill(pid, sig); err != nil {
			w.logger.Debug("signal worker process", logging.Error(err))
		}
	}
}

// announce invokes the callback and publishes a lifecycle event. Observer
// panics are contained so they cannot wedge the monitoring goroutine.
func (w *Worker) announce(snap Result) {
	if w.callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("worker callback panicked", logging.Any("panic", r))
				}
			}()
			w.callback(w, snap.Status, snap)
		}()
	}
	if w.publishEvents && w.publisher != nil {
		w.publisher.Publish(Event{
			WorkerID:  w.id,
			Task:      w.task,
			Status:    snap.Status,
			Result:    snap.Value,
			Err:       snap.Err,
			Timestamp: time.Now().UTC(),
		})
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}
