package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCollector(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCollector() error {
	var err error
	if c.Collector.ScrapableRoot, err = expandPath(strings.TrimSpace(c.Collector.ScrapableRoot)); err != nil {
		return fmt.Errorf("collector.scrapable_root: %w", err)
	}
	if c.Collector.IngestedDirectory, err = expandPath(strings.TrimSpace(c.Collector.IngestedDirectory)); err != nil {
		return fmt.Errorf("collector.ingested_directory: %w", err)
	}
	if c.Collector.NobarcodeDirectory, err = expandPath(strings.TrimSpace(c.Collector.NobarcodeDirectory)); err != nil {
		return fmt.Errorf("collector.nobarcode_directory: %w", err)
	}
	if c.Collector.Workers <= 0 {
		c.Collector.Workers = defaultWorkers
	}
	if c.Collector.MaxDepth <= 0 {
		c.Collector.MaxDepth = defaultMaxDepth
	}
	if c.Collector.SettleSeconds < 0 {
		c.Collector.SettleSeconds = 0
	}
	c.Collector.DirectoryPattern = strings.TrimSpace(c.Collector.DirectoryPattern)
	if c.Collector.DirectoryPattern == "" {
		c.Collector.DirectoryPattern = DefaultDirectoryPattern
	}

	exts := make([]string, 0, len(c.Collector.ImageExtensions))
	seen := make(map[string]struct{}, len(c.Collector.ImageExtensions))
	for _, ext := range c.Collector.ImageExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultImageExtensions...)
	}
	c.Collector.ImageExtensions = exts
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.LogDir, defaultSQLiteName)
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	c.Store.PostgresDSN = strings.TrimSpace(c.Store.PostgresDSN)
	if c.Store.PostgresDSN == "" {
		if value, ok := os.LookupEnv("ROCKINGESTER_POSTGRES_DSN"); ok {
			c.Store.PostgresDSN = strings.TrimSpace(value)
		}
	}
	if c.Store.MaxConns <= 0 {
		c.Store.MaxConns = defaultPostgresMaxConns
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}
