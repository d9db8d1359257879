// Package config loads, validates, and normalizes loom's TOML configuration.
package config
