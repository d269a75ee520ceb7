// Package oteladapters implements the circulation observability interfaces on top of OpenTelemetry.
//
//   - TracingCollector: one span per controller operation, status mapped to span codes
//   - MetricsCollector: histograms, counters and gauges created on first use
//   - SlogBridgeLogger: ContextualLogger with trace correlation, via the otelslog bridge
//     or a plain slog.Handler enriched with trace and span IDs
//   - OTelLogger: ContextualLogger writing log records through the OpenTelemetry logs API
package oteladapters
