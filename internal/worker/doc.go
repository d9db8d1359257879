// Package worker runs registered task functions in isolated child processes.
//
// A Worker wraps one invocation of a registered task: the task name and its
// JSON-encoded arguments are handed to a re-executed copy of the current
// binary, which runs the function and reports a single result frame back over
// stdout. The parent tracks the lifecycle (pending, running, completed,
// error, cancelled), invokes an optional callback on transitions, and can
// publish lifecycle events to a bus.
//
// Programs that start workers must call MaybeRunChild early in main (and in
// TestMain for test binaries) so the spawned process takes the child role.
package worker
