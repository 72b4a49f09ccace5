package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration shared by all sites.
type Paths struct {
	ScanRoot      string `toml:"scan_root"`
	MaterialsRoot string `toml:"materials_root"`
	LogDir        string `toml:"log_dir"`
	AuditLog      string `toml:"audit_log"`
}

// Tools contains the external binaries the pipeline shells out to.
type Tools struct {
	Pdftoppm  string `toml:"pdftoppm"`
	Lp        string `toml:"lp"`
	RasterDPI int    `toml:"raster_dpi"`
}

// Site describes one campus: its printer and copy limits. Folder paths are
// derived from the scan root and the site key.
type Site struct {
	PrinterName string `toml:"printer_name"`
	MaxCopies   int    `toml:"max_copies"`
	Copies      int    `toml:"copies"`
}

// Watch contains timing configuration for the per-site watch loops.
type Watch struct {
	PollInterval          int `toml:"poll_interval"`
	StableChecks          int `toml:"stable_checks"`
	StableCheckIntervalMS int `toml:"stable_check_interval_ms"`
	MaxInFlight           int `toml:"max_in_flight"`
	DecodeTimeout         int `toml:"decode_timeout"`
	DispatchTimeout       int `toml:"dispatch_timeout"`
	RestartBackoff        int `toml:"restart_backoff"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Stalls         bool   `toml:"stalls"`
	Errors         bool   `toml:"errors"`
	Lifecycle      bool   `toml:"lifecycle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scanrouter.
//
// Sections by subsystem:
//   - Paths: scan root, materials root, log dir, audit log location
//   - Tools: poppler and CUPS binaries
//   - Sites: per-campus printer mapping
//   - Watch: watch loop timing and pipeline timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths           `toml:"paths"`
	Tools         Tools           `toml:"tools"`
	Sites         map[string]Site `toml:"sites"`
	Watch         Watch           `toml:"watch"`
	Notifications Notifications   `toml:"notifications"`
	Logging       Logging         `toml:"logging"`
}

// SitePaths holds the four lifecycle folders owned by one site.
type SitePaths struct {
	Key        string
	In         string
	Processing string
	Done       string
	Error      string
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scanrouter/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. Either every declared
// site loads or the whole load fails.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ResolvePath reports where a configuration file would be read from and
// whether one exists there, without parsing or validating anything.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scanrouter.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SiteKeys returns the configured site keys in stable order.
func (c *Config) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for key := range c.Sites {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SitePaths derives the four lifecycle folders for a site key. The exact
// folder names are required by existing operator tooling.
func (c *Config) SitePaths(key string) SitePaths {
	root := filepath.Join(c.Paths.ScanRoot, key)
	return SitePaths{
		Key:        key,
		In:         filepath.Join(root, "in"),
		Processing: filepath.Join(root, "processing"),
		Done:       filepath.Join(root, "done"),
		Error:      filepath.Join(root, "error"),
	}
}

// AuditLogPath returns the resolved audit log location.
func (c *Config) AuditLogPath() string {
	return c.Paths.AuditLog
}

// JournalPath returns the SQLite job journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

// EnsureDirectories creates the log directory and every site's lifecycle
// folders. The materials root is external and is only required to exist.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log directory %q: %w", c.Paths.LogDir, err)
	}
	for _, key := range c.SiteKeys() {
		paths := c.SitePaths(key)
		for _, dir := range []string{paths.In, paths.Processing, paths.Done, paths.Error} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create site directory %q: %w", dir, err)
			}
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
