package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var requiredPatternGroups = []string{"barcode", "date", "instrument"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCollector(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCollector() error {
	col := c.Collector
	if col.ScrapableRoot == "" {
		return errors.New("collector.scrapable_root must be set")
	}
	if col.IngestedDirectory == "" {
		return errors.New("collector.ingested_directory must be set")
	}
	if col.NobarcodeDirectory == "" {
		return errors.New("collector.nobarcode_directory must be set")
	}
	dirs := map[string]string{
		"collector.scrapable_root":      col.ScrapableRoot,
		"collector.ingested_directory":  col.IngestedDirectory,
		"collector.nobarcode_directory": col.NobarcodeDirectory,
	}
	seen := make(map[string]string, len(dirs))
	for _, key := range []string{"collector.scrapable_root", "collector.ingested_directory", "collector.nobarcode_directory"} {
		dir := filepath.Clean(dirs[key])
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("%s and %s must be different directories", other, key)
		}
		seen[dir] = key
	}
	if err := ensurePositiveMap(map[string]int{
		"collector.poll_interval":        col.PollInterval,
		"collector.error_retry_interval": col.ErrorRetryInterval,
		"collector.workers":              col.Workers,
		"collector.max_depth":            col.MaxDepth,
	}); err != nil {
		return err
	}
	re, err := regexp.Compile(col.DirectoryPattern)
	if err != nil {
		return fmt.Errorf("collector.directory_pattern: %w", err)
	}
	names := re.SubexpNames()
	for _, group := range requiredPatternGroups {
		if !containsString(names, group) {
			return fmt.Errorf("collector.directory_pattern must define a named group %q", group)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.backend is sqlite")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn must be set when store.backend is postgres (or set ROCKINGESTER_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected sqlite or postgres)", c.Store.Backend)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
