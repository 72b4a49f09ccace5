package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	applyEnvOverrides(c)

	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeSites()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ScanRoot != "" {
		if c.Paths.ScanRoot, err = expandPath(c.Paths.ScanRoot); err != nil {
			return fmt.Errorf("paths.scan_root: %w", err)
		}
	}
	if c.Paths.MaterialsRoot != "" {
		if c.Paths.MaterialsRoot, err = expandPath(c.Paths.MaterialsRoot); err != nil {
			return fmt.Errorf("paths.materials_root: %w", err)
		}
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AuditLog) == "" {
		c.Paths.AuditLog = filepath.Join(c.Paths.LogDir, "print_log.csv")
	} else if c.Paths.AuditLog, err = expandPath(c.Paths.AuditLog); err != nil {
		return fmt.Errorf("paths.audit_log: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Pdftoppm = strings.TrimSpace(c.Tools.Pdftoppm)
	c.Tools.Lp = strings.TrimSpace(c.Tools.Lp)
	if c.Tools.Pdftoppm == "" {
		c.Tools.Pdftoppm = "pdftoppm"
	}
	if c.Tools.Lp == "" {
		c.Tools.Lp = "lp"
	}
	if c.Tools.RasterDPI <= 0 {
		c.Tools.RasterDPI = 200
	}
}

func (c *Config) normalizeSites() {
	normalized := make(map[string]Site, len(c.Sites))
	for key, site := range c.Sites {
		site.PrinterName = strings.TrimSpace(site.PrinterName)
		if site.Copies == 0 {
			site.Copies = 1
		}
		normalized[strings.ToLower(strings.TrimSpace(key))] = site
	}
	c.Sites = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
