package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"rockingester/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Files are treated as settled immediately unless WithSettleSeconds is used.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Collector.ScrapableRoot = filepath.Join(base, "images")
	cfgVal.Collector.IngestedDirectory = filepath.Join(base, "ingested")
	cfgVal.Collector.NobarcodeDirectory = filepath.Join(base, "nobarcode")
	cfgVal.Collector.SettleSeconds = 0
	cfgVal.Collector.PollInterval = 1
	cfgVal.Collector.ErrorRetryInterval = 1
	cfgVal.Store.Backend = config.BackendSQLite
	cfgVal.Store.SQLitePath = filepath.Join(base, "logs", "xchembku.db")
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Collector.ScrapableRoot, 0o755); err != nil {
		t.Fatalf("mkdir scrapable root: %v", err)
	}
	return builder.cfg
}

// WithWorkers overrides the collector worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collector.Workers = n
	}
}

// WithSettleSeconds overrides the minimum file age before ingestion.
func WithSettleSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collector.SettleSeconds = seconds
	}
}

// WithMaxDepth overrides how deep the scanner descends.
func WithMaxDepth(depth int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Collector.MaxDepth = depth
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Collector.ScrapableRoot)
}
