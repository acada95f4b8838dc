// Package internaldefs holds the shared counter-name table used by the
// Prometheus and OpenTelemetry exporters. It exists so the two export
// surfaces name and describe the same counters identically.
package internaldefs
