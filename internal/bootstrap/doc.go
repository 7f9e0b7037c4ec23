// Package bootstrap sequences a bootstrap-seed generation run.
//
// A run loads and checks every input first, asks the operator to confirm the
// destructive step, then stages a fresh runtime data directory, initializes
// the runtime against a temporary publishing seed, and serves it. Runtime
// output is relayed line by line; the first readiness marker starts the
// publisher in the background while relaying continues until the runtime's
// output ends.
package bootstrap
