package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"loom/internal/worker"
)

// registerBuiltinTasks installs the demo task set. These are the functions
// `loom run` can dispatch; programs embedding the packages register their
// own instead.
func registerBuiltinTasks() {
	worker.MustRegister("double", func(ctx context.Context, call worker.Call) (any, error) {
		var n float64
		if err := call.Arg(0, &n); err != nil {
			return nil, err
		}
		return n * 2, nil
	})

	worker.MustRegister("sum", func(ctx context.Context, call worker.Call) (any, error) {
		total := 0.0
		for i := range call.Args {
			var n float64
			if err := call.Arg(i, &n); err != nil {
				return nil, err
			}
			total += n
		}
		return total, nil
	})

	worker.MustRegister("sleep", func(ctx context.Context, call worker.Call) (any, error) {
		var seconds float64
		if err := call.Arg(0, &seconds); err != nil {
			return nil, err
		}
		if seconds < 0 {
			return nil, errors.New("duration must not be negative")
		}
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
			return fmt.Sprintf("slept %gs", seconds), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	worker.MustRegister("checksum", func(ctx context.Context, call worker.Call) (any, error) {
		var input string
		if err := call.Arg(0, &input); err != nil {
			return nil, err
		}
		digest := sha256.Sum256([]byte(input))
		return hex.EncodeToString(digest[:]), nil
	})

	worker.MustRegister("fail", func(ctx context.Context, call worker.Call) (any, error) {
		message := "deliberate failure"
		if _, err := call.Kwarg("message", &message); err != nil {
			return nil, err
		}
		return nil, errors.New(message)
	})
}
