// Package config provides configuration loading and validation for the VAP telemetry server.
// It handles YAML-based configuration with per-section validation and fills in defaults
// for every optional parameter.
package config
