package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// childEnvVar marks a process spawned to execute a single task.
const childEnvVar = "LOOM_WORKER_CHILD"

// MaybeRunChild takes over the process when it was spawned by a Worker.
// Call it from main (and from TestMain in test binaries) after all tasks
// have been registered; it returns immediately in the parent role and never
// returns in the child role.
func MaybeRunChild() {
	if os.Getenv(childEnvVar) == "" {
		return
	}
	os.Exit(RunChild(DefaultRegistry(), os.Stdin, os.Stdout))
}

// RunChild executes the child role: decode the task payload from in, run the
// registered function, and write a single result frame to out. Every failure
// mode is converted into a frame; the child never lets a task fault escape
// as an unexplained crash.
func RunChild(reg *Registry, in io.Reader, out io.Writer) int {
	var p payload
	if err := json.NewDecoder(in).Decode(&p); err != nil {
		writeFrame(out, resultFrame{
			Outcome: outcomeError,
			Failure: newFailure(FailureKindTransfer, "decode task payload", err),
		})
		return 1
	}

	fn, ok := reg.Lookup(p.Task)
	if !ok {
		writeFrame(out, resultFrame{
			Outcome: outcomeError,
			Failure: newFailure(FailureKindTransfer,
				fmt.Sprintf("task %q is not registered in the child process", p.Task), nil),
		})
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)
	defer stop()

	result, err := runTask(ctx, fn, Call{Args: p.Args, Kwargs: p.Kwargs})
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil && errors.Is(err, ctx.Err())):
		writeFrame(out, resultFrame{Outcome: outcomeCancelled})
	case err != nil:
		var failure *Failure
		if !errors.As(err, &failure) {
			failure = newFailure(FailureKindExecution, "", err)
		}
		writeFrame(out, resultFrame{Outcome: outcomeError, Failure: failure})
	default:
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			writeFrame(out, resultFrame{
				Outcome: outcomeError,
				Failure: newFailure(FailureKindTransfer, "task result is not serializable", marshalErr),
			})
			return 1
		}
		writeFrame(out, resultFrame{Outcome: outcomeCompleted, Result: raw})
	}
	return 0
}

// runTask invokes the task function with panic containment.
func runTask(ctx context.Context, fn Func, call Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{
				Kind:    FailureKindPanic,
				Message: fmt.Sprintf("task panicked: %v", r),
				Detail:  string(debug.Stack()),
			}
		}
	}()
	return fn(ctx, call)
}

func writeFrame(out io.Writer, frame resultFrame) {
	// Best effort: if stdout is gone the parent already gave up on us.
	_ = json.NewEncoder(out).Encode(frame)
}
