// Package otel publishes dramauth counters through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter
// and one Int64ObservableGauge per login-latency bucket. A single
// callback reads [dramauth.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
