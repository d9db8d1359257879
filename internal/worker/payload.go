package worker

import (
	"encoding/json"
	"fmt"
)

// Call carries the decoded arguments a task function was invoked with.
type Call struct {
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage
}

// Arg decodes the positional argument at index i into dst.
func (c Call) Arg(i int, dst any) error {
	if i < 0 || i >= len(c.Args) {
		return fmt.Errorf("argument %d out of range (have %d)", i, len(c.Args))
	}
	if err := json.Unmarshal(c.Args[i], dst); err != nil {
		return fmt.Errorf("decode argument %d: %w", i, err)
	}
	return nil
}

// Kwarg decodes the keyword argument name into dst. It reports whether the
// argument was present.
func (c Call) Kwarg(name string, dst any) (bool, error) {
	raw, ok := c.Kwargs[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode keyword argument %q: %w", name, err)
	}
	return true, nil
}

// payload is the task description written to the child's stdin.
type payload struct {
	Task   string                     `json:"task"`
	Args   []json.RawMessage          `json:"args,omitempty"`
	Kwargs map[string]json.RawMessage `json:"kwargs,omitempty"`
}

// Frame outcomes reported by the child.
const (
	outcomeCompleted = "completed"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// resultFrame is the single JSON object the child writes to stdout when the
// task finishes.
type resultFrame struct {
	Outcome string          `json:"outcome"`
	Result  json.RawMessage `json:"result,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
}

func encodeArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d (%T): %v", ErrTransfer, i, arg, err)
		}
		encoded[i] = raw
	}
	return encoded, nil
}

func encodeKwargs(kwargs map[string]any) (map[string]json.RawMessage, error) {
	if len(kwargs) == 0 {
		return nil, nil
	}
	encoded := make(map[string]json.RawMessage, len(kwargs))
	for key, value := range kwargs {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: keyword argument %q (%T): %v", ErrTransfer, key, value, err)
		}
		encoded[key] = raw
	}
	return encoded, nil
}
