// ABOUTME: Package doc for Prometheus metrics
// ABOUTME: Private registry with gateway-wide instruments

// Package metrics holds the gateway's Prometheus instruments on a private
// registry so tests can build isolated instances.
package metrics
