// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection layer for unixbridge.
//
// Provides:
//   - Prometheus collectors for the accept path, the fan-out and the pull loop
//   - Named debug probes exported as a JSON state dump
//
// All Metrics methods are nil-safe so components can run without telemetry.
package control
