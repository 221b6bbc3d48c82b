// Package config loads, normalizes, and validates rockingester configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ROCKINGESTER_POSTGRES_DSN. The Config type centralizes every knob the
// collector daemon and CLI need so the scrapable root, the two archive
// directories and the metadata store are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
