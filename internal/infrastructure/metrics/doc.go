// Package metrics provides Prometheus instrumentation for Gardener Core.
//
// Each Metrics instance carries its own registry so multiple cores (or
// tests) never collide on instrument registration. Subsystems receive
// the instance at construction and update their instruments directly;
// the API server exposes the registry at /metrics.
package metrics
