// Package prometheus renders vaultauth engine counters in Prometheus
// text exposition format, without pulling in the Prometheus client
// library. Serve [PrometheusExporter.Handler] on a metrics endpoint and
// point a scraper at it.
package prometheus
