package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. Validation is
// all-or-nothing: the router never starts with a partial site set.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSites(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.ScanRoot == "" {
		return errors.New("paths.scan_root must be set")
	}
	if c.Paths.MaterialsRoot == "" {
		return errors.New("paths.materials_root must be set")
	}
	return nil
}

func (c *Config) validateSites() error {
	if len(c.Sites) == 0 {
		return errors.New("at least one [sites.<key>] entry must be configured")
	}
	for key, site := range c.Sites {
		if key == "" {
			return errors.New("site key must not be empty")
		}
		if site.PrinterName == "" {
			return fmt.Errorf("sites.%s.printer_name must be set", key)
		}
		if site.MaxCopies <= 0 {
			return fmt.Errorf("sites.%s.max_copies must be positive", key)
		}
		if site.Copies < 1 || site.Copies > site.MaxCopies {
			return fmt.Errorf("sites.%s.copies must be between 1 and max_copies (%d)", key, site.MaxCopies)
		}
	}
	return nil
}

func (c *Config) validateWatch() error {
	if err := ensurePositiveMap(map[string]int{
		"watch.poll_interval":            c.Watch.PollInterval,
		"watch.stable_checks":            c.Watch.StableChecks,
		"watch.stable_check_interval_ms": c.Watch.StableCheckIntervalMS,
		"watch.max_in_flight":            c.Watch.MaxInFlight,
		"watch.decode_timeout":           c.Watch.DecodeTimeout,
		"watch.dispatch_timeout":         c.Watch.DispatchTimeout,
		"watch.restart_backoff":          c.Watch.RestartBackoff,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
