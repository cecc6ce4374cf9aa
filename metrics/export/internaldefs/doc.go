// Package internaldefs holds the metric name, help, and bucket-boundary
// definitions shared by the exporter implementations.
//
// The Prometheus and OTel exporters must agree on metric names and histogram
// boundaries, so both read from the tables defined here; edits in this
// package propagate to every exporter at once.
//
// # What this package must NOT do
//
//   - Import exporter packages.
//   - Perform I/O.
package internaldefs
