package metrics

import (
	"bytes"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Counter is a labeled, monotonically increasing counter
type Counter struct {
	*prometheus.CounterVec
	labels []string
}

// NewCounter creates a new counter
func NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{
		CounterVec: prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels),
		labels:     labels,
	}
}

// Inc increments the counter by 1
func (c *Counter) Inc(labelValues ...string) {
	c.WithLabelValues(labelValues...).Inc()
}

// Add adds a value to the counter. Negative values are ignored.
func (c *Counter) Add(val float64, labelValues ...string) {
	if val < 0 {
		return
	}
	c.WithLabelValues(labelValues...).Add(val)
}

// Value returns the current value for a label set
func (c *Counter) Value(labelValues ...string) float64 {
	if m := find(c.CounterVec, c.labels, labelValues); m != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

// Total sums the counter across all label sets
func (c *Counter) Total() float64 {
	var total float64
	for _, m := range gather(c.CounterVec) {
		total += m.GetCounter().GetValue()
	}
	return total
}

// Gauge represents a labeled value that can go up and down
type Gauge struct {
	*prometheus.GaugeVec
	labels []string
}

// NewGauge creates a new gauge
func NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{
		GaugeVec: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels),
		labels:   labels,
	}
}

// Set sets the gauge value
func (g *Gauge) Set(val float64, labelValues ...string) {
	g.WithLabelValues(labelValues...).Set(val)
}

// SetBool sets the gauge to 1 or 0
func (g *Gauge) SetBool(v bool, labelValues ...string) {
	if v {
		g.Set(1, labelValues...)
		return
	}
	g.Set(0, labelValues...)
}

// Value returns the current value for a label set
func (g *Gauge) Value(labelValues ...string) float64 {
	if m := find(g.GaugeVec, g.labels, labelValues); m != nil {
		return m.GetGauge().GetValue()
	}
	return 0
}

// Histogram tracks labeled observations in buckets
type Histogram struct {
	*prometheus.HistogramVec
	labels []string
}

// NewHistogram creates a new histogram. Buckets may be given in any order.
func NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	return &Histogram{
		HistogramVec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: sorted,
		}, labels),
		labels: labels,
	}
}

// ProbeBuckets returns buckets sized for sub-second health probes
func ProbeBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}
}

// LatencyBuckets returns buckets suitable for API call latency
func LatencyBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
}

// Observe records an observation
func (h *Histogram) Observe(val float64, labelValues ...string) {
	h.WithLabelValues(labelValues...).Observe(val)
}

// Count returns the number of observations for a label set
func (h *Histogram) Count(labelValues ...string) uint64 {
	if m := find(h.HistogramVec, h.labels, labelValues); m != nil {
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

// gather snapshots every series of a collector
func gather(c prometheus.Collector) []*dto.Metric {
	ch := make(chan prometheus.Metric)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var out []*dto.Metric
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// find returns the series whose labels match labelValues, without creating it
func find(c prometheus.Collector, labelNames, labelValues []string) *dto.Metric {
	if len(labelNames) != len(labelValues) {
		return nil
	}
	want := make(map[string]string, len(labelNames))
	for i, name := range labelNames {
		want[name] = labelValues[i]
	}

	for _, m := range gather(c) {
		match := len(m.GetLabel()) == len(want)
		for _, pair := range m.GetLabel() {
			if want[pair.GetName()] != pair.GetValue() {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	return nil
}

// Registry is a private Prometheus registry for one client
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Register registers a collector
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// Unregister removes a collector, reporting whether it was registered
func (r *Registry) Unregister(c prometheus.Collector) bool {
	return r.reg.Unregister(c)
}

// Gatherer exposes the registry to Prometheus tooling
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Collect renders all metrics in the text exposition format, ordered by name
func (r *Registry) Collect() string {
	families, err := r.reg.Gather()
	if err != nil {
		return ""
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			break
		}
	}
	return buf.String()
}

// Handler returns an HTTP handler for the metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Client metrics

// ClientMetrics contains the metrics recorded by the Alezia client
type ClientMetrics struct {
	Registry *Registry

	// Discovery
	ProbesTotal      *Counter
	ProbeDuration    *Histogram
	ResolutionsTotal *Counter
	HintsTotal       *Counter

	// Connection state
	Connected    *Gauge
	ModelLoaded  *Gauge
	HealthChecks *Counter
	Transitions  *Counter

	// API calls
	RequestsTotal   *Counter
	RequestDuration *Histogram
	FallbacksTotal  *Counter
	BreakerState    *Gauge
}

// NewClientMetrics creates a fresh, registered metric set
func NewClientMetrics() *ClientMetrics {
	m := &ClientMetrics{
		Registry: NewRegistry(),
		ProbesTotal: NewCounter(
			"alezia_probes_total",
			"Health probes sent, by result",
			"result",
		),
		ProbeDuration: NewHistogram(
			"alezia_probe_duration_seconds",
			"Health probe latency in seconds",
			ProbeBuckets(),
		),
		ResolutionsTotal: NewCounter(
			"alezia_resolutions_total",
			"Backend resolution passes, by source of the selected endpoint",
			"source",
		),
		HintsTotal: NewCounter(
			"alezia_port_hints_total",
			"Port hint lookups, by outcome",
			"outcome",
		),
		Connected: NewGauge(
			"alezia_connected",
			"1 when the resolved backend answers its health check",
		),
		ModelLoaded: NewGauge(
			"alezia_model_loaded",
			"1 when the backend reports its language model as loaded",
		),
		HealthChecks: NewCounter(
			"alezia_health_checks_total",
			"Background health checks, by result",
			"result",
		),
		Transitions: NewCounter(
			"alezia_connection_transitions_total",
			"Connected state changes",
			"to",
		),
		RequestsTotal: NewCounter(
			"alezia_api_requests_total",
			"API requests, by method and status class",
			"method", "status",
		),
		RequestDuration: NewHistogram(
			"alezia_api_request_duration_seconds",
			"API request latency in seconds",
			LatencyBuckets(),
			"method",
		),
		FallbacksTotal: NewCounter(
			"alezia_fallback_responses_total",
			"Synthetic responses served instead of backend replies",
			"operation",
		),
		BreakerState: NewGauge(
			"alezia_circuit_breaker_state",
			"Circuit breaker state (0 closed, 1 half-open, 2 open)",
		),
	}

	m.Registry.reg.MustRegister(
		m.ProbesTotal, m.ProbeDuration, m.ResolutionsTotal, m.HintsTotal,
		m.Connected, m.ModelLoaded, m.HealthChecks, m.Transitions,
		m.RequestsTotal, m.RequestDuration, m.FallbacksTotal, m.BreakerState,
	)

	return m
}

// OrNew returns m, or a fresh metric set when m is nil
func OrNew(m *ClientMetrics) *ClientMetrics {
	if m == nil {
		return NewClientMetrics()
	}
	return m
}

// Timer helps measure duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(h *Histogram, labelValues ...string) {
	h.Observe(time.Since(t.start).Seconds(), labelValues...)
}

// Seconds returns elapsed seconds
func (t *Timer) Seconds() float64 {
	return time.Since(t.start).Seconds()
}
