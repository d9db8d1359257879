package config

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: "~/.local/share/loom",
			LogDir:  "~/.local/share/loom/logs",
		},
		Execution: Execution{
			MaxWorkers:         4,
			GracePeriodSeconds: 5,
		},
		Events: Events{
			BufferSize: 64,
		},
		Journal: Journal{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
