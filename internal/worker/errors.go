package worker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPending is returned when Start is called on a worker that has
	// already started or reached a terminal state.
	ErrNotPending = errors.New("worker is not pending")

	// ErrTransfer marks values that cannot cross the process boundary.
	ErrTransfer = errors.New("not transferable")
)

// Failure kinds recorded on error results.
const (
	FailureKindExecution = "execution"
	FailureKindPanic     = "panic"
	FailureKindTransfer  = "transfer"
	FailureKindSpawn     = "spawn"
	FailureKindExit      = "exit"
)

// Failure captures diagnostic information about a failed execution. It is the
// serializable representation of whatever went wrong inside (or around) the
// child process.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(f.Message)
	if msg == "" {
		msg = "worker failure"
	}
	if f.Kind == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func newFailure(kind, message string, err error) *Failure {
	f := &Failure{Kind: kind, Message: strings.TrimSpace(message)}
	if err != nil {
		if f.Message == "" {
			f.Message = err.Error()
		} else {
			f.Detail = err.Error()
		}
	}
	return f
}
