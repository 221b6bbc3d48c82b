// Package collector runs the scan loop: scan the scrapable root, resolve each
// candidate barcode, then ingest or hold the directory.
//
// A pass runs immediately on start and then every poll interval. Directories
// are processed on a small worker pool; files within one directory are handled
// sequentially by the ingestor. When the metadata store cannot be reached the
// whole pass is deferred and retried after the error retry interval. Shutdown
// stops new directories from starting and leaves partially processed ones to
// be resumed on the next run.
package collector
