// Package monitoring provides Prometheus metrics for the plugin host.
//
// Metrics cover the sandbox boundary: envelopes dispatched and dropped,
// capability error responses, live sandbox and panel counts, and the
// pending-request table depth. Each collector owns its registry, so tests
// can create collectors freely.
package monitoring
