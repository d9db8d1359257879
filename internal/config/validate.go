package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants after normalization.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if c.Execution.MaxWorkers < 1 {
		problems = append(problems, fmt.Sprintf("execution.max_workers must be at least 1 (got %d)", c.Execution.MaxWorkers))
	}
	if c.Execution.GracePeriodSeconds < 1 {
		problems = append(problems, fmt.Sprintf("execution.grace_period_seconds must be at least 1 (got %d)", c.Execution.GracePeriodSeconds))
	}
	if c.Events.BufferSize < 1 {
		problems = append(problems, fmt.Sprintf("events.buffer_size must be at least 1 (got %d)", c.Events.BufferSize))
	}
	if c.Notifications.RequestTimeout < 0 {
		problems = append(problems, "notifications.request_timeout must not be negative")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json (got %q)", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
