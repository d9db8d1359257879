package runqueue_test

import (
	"os"
	"testing"

	"loom/internal/testsupport"
)

func TestMain(m *testing.M) {
	os.Exit(testsupport.RunMain(m.Run))
}
