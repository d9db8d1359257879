package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"loom/internal/worker"
)

func main() {
	registerBuiltinTasks()
	worker.MaybeRunChild()

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
