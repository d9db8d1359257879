// Package events fans worker lifecycle events out to subscribers. Each
// subscriber owns a buffered delivery queue and a dispatch goroutine, so a
// slow listener never blocks publishers or other listeners. A package-level
// default bus with idempotent initialization covers the common case of one
// bus per process; tests construct independent Bus instances.
package events
