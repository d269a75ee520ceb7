package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/circulation-engine-go/circulation/oteladapters"
)

func givenMetricsCollector(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewMetricsCollector(provider.Meter("circulation-test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}

	t.Fatalf("metric %s not found", name)

	return nil
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	// arrange
	collector, reader := givenMetricsCollector(t)

	// act
	collector.RecordDuration("circulation_operation_duration_seconds", 150*time.Millisecond, map[string]string{
		"operation": "create_loan",
		"status":    "success",
	})

	// assert
	histogram, ok := collect(t, reader, "circulation_operation_duration_seconds").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	point := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), point.Count)
	assert.InDelta(t, 0.15, point.Sum, 0.001)

	operation, found := point.Attributes.Value(attribute.Key("operation"))
	require.True(t, found)
	assert.Equal(t, "create_loan", operation.AsString())
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	collector, reader := givenMetricsCollector(t)
	labels := map[string]string{"operation": "return_loan", "status": "rejected"}

	collector.IncrementCounter("circulation_operation_calls_total", labels)
	collector.IncrementCounterContext(context.Background(), "circulation_operation_calls_total", labels)

	sum, ok := collect(t, reader, "circulation_operation_calls_total").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	collector, reader := givenMetricsCollector(t)

	collector.RecordValue("circulation_sweep_transitions", 4, nil)
	collector.RecordValueContext(context.Background(), "circulation_sweep_transitions", 7, nil)

	gauge, ok := collect(t, reader, "circulation_sweep_transitions").(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, float64(7), gauge.DataPoints[0].Value)
}

func Test_MetricsCollector_IsSafeForConcurrentUse(t *testing.T) {
	collector, reader := givenMetricsCollector(t)

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			collector.IncrementCounter("circulation_rejections_total", map[string]string{"reason": "out_of_stock"})
		}()
	}

	wg.Wait()

	sum, ok := collect(t, reader, "circulation_rejections_total").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}
