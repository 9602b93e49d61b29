// Package config loads, validates, and normalizes pkgsweep configuration
// from TOML files.
package config
