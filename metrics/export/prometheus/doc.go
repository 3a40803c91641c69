// Package prometheus exposes dramauth counters and the login latency
// histogram as a prometheus.Collector.
//
// [NewCollector] wraps a [dramauth.Engine]. Register it with any registry,
// or mount [Collector.Handler] to serve it alone. Counter names are
// prefixed dramauth_ and end in _total; the histogram is
// dramauth_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global default registry.
//   - Mutate engine state.
package prometheus
