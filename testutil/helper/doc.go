// Package helper provides test fixtures and observability spies shared by the engine's test suites.
//
// The spies (LogHandlerSpy, MetricsCollectorSpy, TracingCollectorSpy) capture calls in memory and
// offer fluent matchers, so tests can assert on instrumentation without a real backend.
package helper
