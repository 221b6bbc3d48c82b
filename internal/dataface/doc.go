// Package dataface is the metadata store consumed by the collector.
//
// It records crystal plates (created by the lab system and looked up by
// barcode) and crystal well images (created by the collector the first time a
// filename is seen). Filename uniqueness is enforced by the database through a
// UNIQUE constraint combined with an ignore-on-conflict insert, so concurrent
// collectors never produce duplicate rows.
//
// Two backends implement Store: SQLite through modernc.org/sqlite for single
// host deployments and Postgres through pgxpool for a shared lab database.
// Open selects one from configuration.
package dataface
