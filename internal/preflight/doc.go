// Package preflight provides readiness checks for the runtime executable,
// the filesystem paths a bootstrap run touches, and the publishing endpoint.
//
// These checks run in two contexts:
//   - The orchestrator calls Required before prompting, so a run that cannot
//     succeed never destroys the existing data directory.
//   - The CLI "seedctl check" command calls RunAll to display every check,
//     including the informational executor probe.
package preflight
