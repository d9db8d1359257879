// Package notify pushes worker outcome notifications to an ntfy topic.
// Without a configured topic every call is a silent no-op, so callers wire
// the service unconditionally.
package notify
