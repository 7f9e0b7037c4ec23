// Package config loads, normalizes, and validates seedctl configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SEEDCTL_ADMIN_CREDENTIAL. The Config type centralizes the runtime
// executable, the data directory that staging rebuilds, and the publishing
// endpoint so the orchestrator receives every location as an explicit value.
//
// Always obtain settings through this package so downstream code receives
// absolute paths and clear validation errors.
package config
