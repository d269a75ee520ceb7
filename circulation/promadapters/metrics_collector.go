package promadapters

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

var _ circulation.MetricsCollector = (*MetricsCollector)(nil)

// ErrNilRegisterer is returned by WithRegisterer(nil).
var ErrNilRegisterer = errors.New("prometheus registerer must not be nil")

// ErrEmptyBuckets is returned by WithBuckets without any bucket.
var ErrEmptyBuckets = errors.New("histogram buckets must not be empty")

const (
	helpDuration = "Circulation operation duration"
	helpCounter  = "Circulation event counter"
	helpValue    = "Circulation current value"
)

// MetricsCollector maps the circulation metrics onto Prometheus vectors:
//   - RecordDuration -> HistogramVec in seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
type MetricsCollector struct {
	registerer prometheus.Registerer
	buckets    []float64
	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector) error

// WithRegisterer registers the vectors with reg instead of prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *MetricsCollector) error {
		if reg == nil {
			return ErrNilRegisterer
		}

		m.registerer = reg

		return nil
	}
}

// WithBuckets sets the histogram buckets in seconds. The default is prometheus.DefBuckets.
func WithBuckets(buckets ...float64) Option {
	return func(m *MetricsCollector) error {
		if len(buckets) == 0 {
			return ErrEmptyBuckets
		}

		m.buckets = slices.Clone(buckets)
		slices.Sort(m.buckets)

		return nil
	}
}

// NewMetricsCollector creates a MetricsCollector with optional configuration.
func NewMetricsCollector(options ...Option) (*MetricsCollector, error) {
	m := &MetricsCollector{
		registerer: prometheus.DefaultRegisterer,
		buckets:    prometheus.DefBuckets,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *MetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	vec := m.histogram(metric, labels)
	if vec == nil {
		return
	}

	if observer, err := vec.GetMetricWith(labels); err == nil {
		observer.Observe(duration.Seconds())
	}
}

func (m *MetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	vec := m.counter(metric, labels)
	if vec == nil {
		return
	}

	if counter, err := vec.GetMetricWith(labels); err == nil {
		counter.Inc()
	}
}

func (m *MetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	vec := m.gauge(metric, labels)
	if vec == nil {
		return
	}

	if gauge, err := vec.GetMetricWith(labels); err == nil {
		gauge.Set(value)
	}
}

func (m *MetricsCollector) histogram(name string, labels map[string]string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.histograms[name]; exists {
		return vec
	}

	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: name, Help: helpDuration, Buckets: m.buckets},
		labelNames(labels),
	)

	registered, ok := register(m.registerer, vec).(*prometheus.HistogramVec)
	if !ok {
		return nil
	}

	m.histograms[name] = registered

	return registered
}

func (m *MetricsCollector) counter(name string, labels map[string]string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.counters[name]; exists {
		return vec
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpCounter}, labelNames(labels))

	registered, ok := register(m.registerer, vec).(*prometheus.CounterVec)
	if !ok {
		return nil
	}

	m.counters[name] = registered

	return registered
}

func (m *MetricsCollector) gauge(name string, labels map[string]string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.gauges[name]; exists {
		return vec
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: helpValue}, labelNames(labels))

	registered, ok := register(m.registerer, vec).(*prometheus.GaugeVec)
	if !ok {
		return nil
	}

	m.gauges[name] = registered

	return registered
}

// register returns the collector that is actually registered under the vector's name,
// which is an earlier instance if another collector got there first. It returns nil on conflict.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	err := reg.Register(c)
	if err == nil {
		return c
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector
	}

	return nil
}

func labelNames(labels map[string]string) []string {
	return slices.Sorted(maps.Keys(labels))
}
