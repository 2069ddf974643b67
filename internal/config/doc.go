// ABOUTME: Package doc for configuration
// ABOUTME: YAML loading with env expansion, defaults, validation

// Package config loads gateway configuration from YAML with ${VAR}
// environment expansion and duration parsing.
package config
