// Package otel bridges vaultauth engine counters onto an OpenTelemetry
// meter as observable instruments. Collection is pull-based: the SDK's
// reader triggers a snapshot, so an idle pipeline costs nothing on the
// engine's hot paths.
package otel
