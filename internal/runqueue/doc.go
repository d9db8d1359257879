// Package runqueue schedules workers under a fixed concurrency cap.
//
// Submitted workers wait in a FIFO pending list; at most the configured
// number run at once. A watcher goroutine per worker observes its terminal
// transition, reclaims the slot, and admits the next pending worker — no
// polling. Results for every worker ever submitted stay queryable until the
// queue is discarded.
package runqueue
