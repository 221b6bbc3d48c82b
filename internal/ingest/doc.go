// Package ingest registers plate images and relocates them into the archives.
//
// For a matched plate each image is first registered in the dataface
// (insert-if-absent on its archive filename) and then moved into
// <ingested>/<directory name>/. Unmatched plates are moved into
// <nobarcode>/<directory name>/ without touching the dataface. Source
// directories are removed once every file has left them.
//
// No in-memory record of processed files is kept. A restarted collector
// rediscovers a partially ingested directory, the dataface reports the
// already registered filenames, and the remaining moves are retried.
package ingest
