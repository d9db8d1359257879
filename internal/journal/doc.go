// Package journal records finished worker runs in a local SQLite database.
// It is an audit trail of terminal outcomes only; queued or running work is
// never persisted, so restarting a process never resurrects workers.
package journal
