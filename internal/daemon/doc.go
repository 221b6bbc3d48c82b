// Package daemon coordinates the long-running rockingester process.
//
// It wires configuration, the metadata store and the collector into a single
// lifecycle with flock-based locking to prevent multiple instances scraping
// the same root. Start runs the preflight checks, launches the collector loop
// and, when enabled, the HTTP listener that serves /metrics and /api/status.
//
// Keep orchestration logic here: scanning, resolving and ingesting live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
