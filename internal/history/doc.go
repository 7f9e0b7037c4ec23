// Package history keeps a SQLite ledger of bootstrap runs so operators can
// see which seeds were generated, from which prototype, and how each run
// ended.
package history
