// Package main hosts the seedctl CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration, builds the logger,
// and hands each invocation to the internal packages: generate-bootstrap runs
// the bootstrap orchestrator, check runs preflight, history reads the run
// ledger, and config scaffolds and validates configuration files.
package main
