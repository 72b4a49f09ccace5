package config

import (
	"os"
	"strings"
)

// Default returns the baseline configuration before file and environment
// overrides are applied.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: "~/.local/share/scanrouter/logs",
		},
		Tools: Tools{
			Pdftoppm:  "pdftoppm",
			Lp:        "lp",
			RasterDPI: 200,
		},
		Sites: map[string]Site{},
		Watch: Watch{
			PollInterval:          5,
			StableChecks:          6,
			StableCheckIntervalMS: 500,
			MaxInFlight:           2,
			DecodeTimeout:         60,
			DispatchTimeout:       30,
			RestartBackoff:        10,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Stalls:         true,
			Errors:         true,
			Lifecycle:      false,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if topic := strings.TrimSpace(os.Getenv("SCANROUTER_NTFY_TOPIC")); topic != "" {
		cfg.Notifications.NtfyTopic = topic
	}
	if poppler := strings.TrimSpace(os.Getenv("SCANROUTER_PDFTOPPM")); poppler != "" {
		cfg.Tools.Pdftoppm = poppler
	}
}
