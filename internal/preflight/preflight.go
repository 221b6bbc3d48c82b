package preflight

import (
	"context"
	"fmt"
	"strings"

	"rockingester/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. store may be
// nil when the caller only wants filesystem checks.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryReadable("Scrapable root", cfg.Collector.ScrapableRoot),
		CheckDirectoryAccess("Ingested directory", cfg.Collector.IngestedDirectory),
		CheckDirectoryAccess("Nobarcode directory", cfg.Collector.NobarcodeDirectory),
	}
	if store != nil {
		results = append(results, CheckStore(ctx, "Metadata store ("+cfg.Store.Backend+")", store))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err summarises failed results as an error, or nil when all passed.
func Err(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
