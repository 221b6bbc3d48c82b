// Package preflight provides readiness checks for the filesystem paths and
// metadata store that the collector depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the collector loop and refuses
//     to start when a check fails.
//   - The CLI "rockingester check" command renders every result.
package preflight
