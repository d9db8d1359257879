package main

import (
	"os"
	"testing"

	"loom/internal/worker"
)

func TestMain(m *testing.M) {
	registerBuiltinTasks()
	worker.MaybeRunChild()
	os.Exit(m.Run())
}
