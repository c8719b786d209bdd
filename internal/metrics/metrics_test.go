package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounter(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("test_total", "Test counter", "result")
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	c.Inc("healthy")
	c.Inc("healthy")
	c.Add(3, "refused")
	c.Add(-1, "refused") // ignored

	if got := c.Value("healthy"); got != 2 {
		t.Errorf("Expected 2, got %g", got)
	}
	if got := c.Value("refused"); got != 3 {
		t.Errorf("Expected 3, got %g", got)
	}
	if got := c.Value("never"); got != 0 {
		t.Errorf("Expected 0 for an unseen label, got %g", got)
	}
	if got := c.Total(); got != 5 {
		t.Errorf("Expected total 5, got %g", got)
	}
	if got := testutil.ToFloat64(c.WithLabelValues("refused")); got != 3 {
		t.Errorf("Expected 3 from the collector, got %g", got)
	}

	out := reg.Collect()
	if !strings.Contains(out, `test_total{result="healthy"} 2`) {
		t.Errorf("Missing labeled line in %q", out)
	}
	if !strings.Contains(out, "# TYPE test_total counter") {
		t.Errorf("Missing TYPE line in %q", out)
	}
	if strings.Contains(out, `result="never"`) {
		t.Errorf("Reading a value should not create a series: %q", out)
	}
}

func TestGauge(t *testing.T) {
	reg := NewRegistry()
	g := NewGauge("test_connected", "Test gauge")
	if err := reg.Register(g); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	g.SetBool(true)
	if g.Value() != 1 {
		t.Errorf("Expected 1, got %g", g.Value())
	}
	g.SetBool(false)
	if g.Value() != 0 {
		t.Errorf("Expected 0, got %g", g.Value())
	}

	out := reg.Collect()
	if !strings.Contains(out, "test_connected 0") {
		t.Errorf("Missing unlabeled line in %q", out)
	}
}

func TestHistogram(t *testing.T) {
	reg := NewRegistry()
	h := NewHistogram("test_seconds", "Test histogram", []float64{0.5, 0.1}, "method")
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	h.Observe(0.05, "GET")
	h.Observe(0.3, "GET")
	h.Observe(2, "GET")

	if h.Count("GET") != 3 {
		t.Errorf("Expected 3 observations, got %d", h.Count("GET"))
	}
	if h.Count("POST") != 0 {
		t.Errorf("Expected 0 observations, got %d", h.Count("POST"))
	}

	out := reg.Collect()
	for _, want := range []string{
		`test_seconds_bucket{method="GET",le="0.1"} 1`,
		`test_seconds_bucket{method="GET",le="0.5"} 2`,
		`test_seconds_bucket{method="GET",le="+Inf"} 3`,
		`test_seconds_count{method="GET"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestEscapeLabel(t *testing.T) {
	reg := NewRegistry()
	c := NewCounter("esc_total", "Escaping", "op")
	reg.Register(c)
	c.Inc(`say "hi"`)

	out := reg.Collect()
	if !strings.Contains(out, `op="say \"hi\""`) {
		t.Errorf("Label not escaped: %q", out)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewCounter("dup_total", "First")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(NewCounter("dup_total", "Second")); err == nil {
		t.Error("Expected an error registering the same name twice")
	}
}

func TestClientMetricsHandler(t *testing.T) {
	m := NewClientMetrics()
	m.ProbesTotal.Inc("healthy")
	m.ResolutionsTotal.Inc("hint")
	m.RequestsTotal.Inc("GET", "2xx")
	m.Connected.SetBool(true)

	rec := httptest.NewRecorder()
	m.Registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain content type, got %s", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`alezia_probes_total{result="healthy"} 1`,
		`alezia_resolutions_total{source="hint"} 1`,
		`alezia_api_requests_total{method="GET",status="2xx"} 1`,
		"alezia_connected 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}

	text := m.Registry.Collect()
	if strings.Index(text, "alezia_api_requests_total") > strings.Index(text, "alezia_probes_total") {
		t.Error("Expected metrics sorted by name")
	}

	if n, err := testutil.GatherAndCount(m.Registry.Gatherer()); err != nil || n != 4 {
		t.Errorf("Expected 4 series, got %d (%v)", n, err)
	}
}

func TestClientMetricsAreIsolated(t *testing.T) {
	a, b := NewClientMetrics(), NewClientMetrics()
	a.FallbacksTotal.Inc("send_message")

	if got := b.FallbacksTotal.Value("send_message"); got != 0 {
		t.Errorf("Expected separate metric sets, got %g", got)
	}
}

func TestOrNew(t *testing.T) {
	if OrNew(nil) == nil {
		t.Fatal("Expected a fresh metric set")
	}
	m := NewClientMetrics()
	if OrNew(m) != m {
		t.Error("Expected the given metric set back")
	}
}
