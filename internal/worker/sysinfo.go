package worker

import "runtime"

// SuggestWorkers returns a reasonable concurrency cap for this host.
// CPU-bound work gets one slot per CPU; I/O-bound work is allowed twice
// that since slots spend most of their time waiting. A positive max caps
// the suggestion.
func SuggestWorkers(ioBound bool, max int) int {
	n := runtime.NumCPU()
	if ioBound {
		n *= 2
	}
	if max > 0 && n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}
