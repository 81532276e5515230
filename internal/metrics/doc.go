// Package metrics defines the Prometheus collectors exported by the server.
package metrics
