// Package server implements the HTTP API of the VAP telemetry server.
// It lists sessions, streams session recordings and serves prepared model output
// payloads, together with health, configuration and Prometheus endpoints.
package server
