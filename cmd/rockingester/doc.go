// Command rockingester scrapes plate image directories written by the
// Formulatrix imager, registers the images with the metadata store and moves
// them into the ingested or nobarcode archive.
//
// `rockingester run` starts the long-running collector. `scan` performs a
// single pass, `status` and `check` report on the store and the configured
// directories, and `config init|validate` manage the TOML configuration.
package main
