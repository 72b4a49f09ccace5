package testsupport

import (
	"path/filepath"
	"testing"

	"scanrouter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, declares a single "hq" site, and applies any
// provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScanRoot = filepath.Join(base, "scans")
	cfgVal.Paths.MaterialsRoot = filepath.Join(base, "materials")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AuditLog = filepath.Join(base, "logs", "print_log.csv")
	cfgVal.Sites = map[string]config.Site{
		"hq": {PrinterName: "TEST-PRINTER", MaxCopies: 5, Copies: 1},
	}
	cfgVal.Watch.StableChecks = 1
	cfgVal.Watch.StableCheckIntervalMS = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSite declares an additional site on the test config.
func WithSite(key string, site config.Site) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sites[key] = site
	}
}

// WithNtfyTopic sets the push notification topic on the test config.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScanRoot)
}
