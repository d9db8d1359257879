package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"loom/internal/worker"
)

// Task names registered by RegisterTasks.
const (
	TaskDouble    = "double"
	TaskEcho      = "echo"
	TaskSleepMs   = "sleep_ms"
	TaskFail      = "fail"
	TaskPanic     = "panic"
	TaskBlock     = "block"
	TaskBadResult = "bad_result"
)

var registerOnce sync.Once

// RegisterTasks adds the shared task set to the default registry. Safe to
// call from multiple TestMain-adjacent paths in one binary.
func RegisterTasks() {
	registerOnce.Do(func() {
		worker.MustRegister(TaskDouble, func(ctx context.Context, call worker.Call) (any, error) {
			var n int
			if err := call.Arg(0, &n); err != nil {
				return nil, err
			}
			return n * 2, nil
		})
		worker.MustRegister(TaskEcho, func(ctx context.Context, call worker.Call) (any, error) {
			var msg string
			if err := call.Arg(0, &msg); err != nil {
				return nil, err
			}
			return msg, nil
		})
		worker.MustRegister(TaskSleepMs, func(ctx context.Context, call worker.Call) (any, error) {
			var ms int
			if err := call.Arg(0, &ms); err != nil {
				return nil, err
			}
			timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
				return "slept", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
		worker.MustRegister(TaskFail, func(ctx context.Context, call worker.Call) (any, error) {
			msg := "boom"
			if _, err := call.Kwarg("message", &msg); err != nil {
				return nil, err
			}
			return nil, errors.New(msg)
		})
		worker.MustRegister(TaskPanic, func(ctx context.Context, call worker.Call) (any, error) {
			panic("deliberate test panic")
		})
		worker.MustRegister(TaskBlock, func(ctx context.Context, call worker.Call) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		worker.MustRegister(TaskBadResult, func(ctx context.Context, call worker.Call) (any, error) {
			return func() {}, nil
		})
	})
}

// RunMain is the shared TestMain body: register the task set, hand control
// to the child role when this binary was re-executed as a worker, then run
// the package's tests.
func RunMain(run func() int) int {
	RegisterTasks()
	worker.MaybeRunChild()
	return run()
}
