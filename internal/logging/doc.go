// Package logging assembles structured slog loggers and formatting helpers used
// across rockingester.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standard attribute keys (component, pass_id,
// barcode, directory, filename) so collector, ingestor and daemon log lines
// share one shape. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
