// Package tracing wraps OpenTelemetry so that scheduler jobs, overflow drain
// passes and outbound requests can be traced without importing the SDK at
// every call site.
package tracing
