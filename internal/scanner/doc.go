// Package scanner discovers plate image directories under the scrapable root.
//
// Directory names follow <barcode>_<YYYY-MM-DD>_<instrument>-<platetype>, for
// example 98ab_2023-04-06_RI1000-0276-3drop. The scanner is read-only: it
// never creates, moves or removes anything.
package scanner
