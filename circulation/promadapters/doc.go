// Package promadapters implements circulation.MetricsCollector on the Prometheus client library.
//
// Vectors are created and registered on first use. The label names of a metric are fixed by its
// first observation; later observations with a different label set are dropped, since Prometheus
// does not allow a metric name with two label schemas.
package promadapters
