// Package logging builds the slog loggers used across loom. It provides a
// console handler with aligned key=value output, a JSON handler for machine
// consumption, and small attribute helpers so call sites stay terse.
package logging
