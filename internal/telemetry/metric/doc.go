// Package metric provides Prometheus metrics for authcore.
//
// A Registry owns its own prometheus.Registry so that tests and multiple
// servers in one process never collide on registration. All recording
// methods are safe on a nil *Registry, which lets services run without
// metrics wired.
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
