package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/internal/probe"
)

// scriptedChecker returns queued probe results in order, repeating the last
type scriptedChecker struct {
	mu       sync.Mutex
	statuses []probe.HealthStatus
	model    []modelResult
	probed   []string
	timeout  time.Duration
	block    bool
	panicOn  bool
}

type modelResult struct {
	loaded, ok bool
}

func (c *scriptedChecker) ProbeURL(ctx context.Context, baseURL string) probe.HealthStatus {
	c.mu.Lock()
	c.probed = append(c.probed, baseURL)
	block, panicOn := c.block, c.panicOn
	var status probe.HealthStatus
	if len(c.statuses) > 0 {
		status = c.statuses[0]
		if len(c.statuses) > 1 {
			c.statuses = c.statuses[1:]
		}
	}
	c.mu.Unlock()

	if panicOn {
		panic("checker exploded")
	}
	if block {
		<-ctx.Done()
		return probe.HealthStatus{Status: probe.StatusUnreachable, Reason: probe.ReasonTimeout}
	}
	return status
}

func (c *scriptedChecker) CheckModel(ctx context.Context, baseURL string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.model) == 0 {
		return false, false
	}
	r := c.model[0]
	if len(c.model) > 1 {
		c.model = c.model[1:]
	}
	return r.loaded, r.ok
}

func (c *scriptedChecker) Timeout() time.Duration {
	if c.timeout == 0 {
		return probe.MaxTimeout
	}
	return c.timeout
}

func (c *scriptedChecker) probeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.probed)
}

var (
	healthy     = probe.HealthStatus{Status: probe.StatusHealthy, Backend: "healthy"}
	degraded    = probe.HealthStatus{Status: probe.StatusDegraded, Backend: "degraded"}
	unreachable = probe.HealthStatus{Status: probe.StatusUnreachable, Reason: probe.ReasonRefused}
)

func newTestMonitor(checker Checker, m *metrics.ClientMetrics) (*Monitor, *connection.Handle) {
	h := connection.New("http://localhost:8000")
	h.SetResolution("http://localhost:8004", false, connection.SourceScan, time.Now())
	mon := NewMonitor(Options{
		Interval: 10 * time.Millisecond,
		Checker:  checker,
		Handle:   h,
		Logger:   logging.New(io.Discard),
		Metrics:  m,
	})
	return mon, h
}

func TestTickSuccessThenFailure(t *testing.T) {
	checker := &scriptedChecker{
		statuses: []probe.HealthStatus{healthy, unreachable},
		model:    []modelResult{{loaded: true, ok: true}},
	}
	m := metrics.NewClientMetrics()
	mon, h := newTestMonitor(checker, m)

	first := mon.Tick(context.Background())
	if !first.Connected || !first.ModelLoaded {
		t.Errorf("Expected connected with model loaded, got %+v", first)
	}

	second := mon.Tick(context.Background())
	if second.Connected {
		t.Error("Expected connected=false after failed probe")
	}
	if !second.ModelLoaded {
		t.Error("Failed probe must leave modelLoaded at its last value")
	}
	if second.BaseURL != "http://localhost:8004" || h.BaseURL() != "http://localhost:8004" {
		t.Errorf("Monitor changed base URL to %s", second.BaseURL)
	}

	if m.Transitions.Value("connected") != 1 || m.Transitions.Value("disconnected") != 1 {
		t.Errorf("Expected one transition each way, got %g/%g",
			m.Transitions.Value("connected"), m.Transitions.Value("disconnected"))
	}
	if m.Connected.Value() != 0 || m.ModelLoaded.Value() != 1 {
		t.Errorf("Unexpected gauges: connected=%g model=%g", m.Connected.Value(), m.ModelLoaded.Value())
	}
}

func TestTickCapabilityFailureKeepsModelState(t *testing.T) {
	checker := &scriptedChecker{
		statuses: []probe.HealthStatus{healthy},
		model:    []modelResult{{loaded: true, ok: true}, {ok: false}},
	}
	mon, _ := newTestMonitor(checker, nil)

	mon.Tick(context.Background())
	snap := mon.Tick(context.Background())

	if !snap.Connected || !snap.ModelLoaded {
		t.Errorf("Expected model state kept when capability probe fails, got %+v", snap)
	}
}

func TestTickDegradedIsDisconnected(t *testing.T) {
	mon, _ := newTestMonitor(&scriptedChecker{statuses: []probe.HealthStatus{degraded}}, nil)

	if snap := mon.Tick(context.Background()); snap.Connected {
		t.Error("Expected degraded backend to count as disconnected")
	}
}

func TestTickBoundedByProbeTimeout(t *testing.T) {
	checker := &scriptedChecker{block: true, timeout: 50 * time.Millisecond}
	mon, _ := newTestMonitor(checker, nil)

	start := time.Now()
	snap := mon.Tick(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Tick blocked for %v", elapsed)
	}
	if snap.Connected {
		t.Error("Expected disconnected after timeout")
	}
}

func TestTickRecoversPanic(t *testing.T) {
	mon, h := newTestMonitor(&scriptedChecker{panicOn: true}, nil)

	snap := mon.Tick(context.Background())
	if snap.BaseURL != h.BaseURL() {
		t.Errorf("Expected current snapshot after panic, got %+v", snap)
	}
}

func TestTickDropsStaleResult(t *testing.T) {
	m := metrics.NewClientMetrics()
	h := connection.New("http://localhost:8000")
	h.SetResolution("http://localhost:8001", true, connection.SourceScan, time.Now())

	checker := &rediscoveringChecker{handle: h}
	mon := NewMonitor(Options{Checker: checker, Handle: h, Logger: logging.New(io.Discard), Metrics: m})

	snap := mon.Tick(context.Background())
	if !snap.Connected || snap.BaseURL != "http://localhost:8009" {
		t.Errorf("Stale check overwrote the new resolution: %+v", snap)
	}
	if m.HealthChecks.Value("stale") != 1 {
		t.Error("Expected stale check to be counted")
	}
}

// rediscoveringChecker simulates a resolution cycle landing mid-check
type rediscoveringChecker struct {
	handle *connection.Handle
}

func (c *rediscoveringChecker) ProbeURL(ctx context.Context, baseURL string) probe.HealthStatus {
	c.handle.SetResolution("http://localhost:8009", true, connection.SourceHint, time.Now())
	return unreachable
}

func (c *rediscoveringChecker) CheckModel(ctx context.Context, baseURL string) (bool, bool) {
	return false, false
}

func (c *rediscoveringChecker) Timeout() time.Duration { return probe.MaxTimeout }

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	checker := &scriptedChecker{statuses: []probe.HealthStatus{healthy}}
	mon, h := newTestMonitor(checker, nil)

	mon.Start()
	mon.Start() // no-op
	if !mon.Running() {
		t.Fatal("Expected monitor running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for checker.probeCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if checker.probeCount() < 2 {
		t.Fatalf("Expected periodic ticks, got %d", checker.probeCount())
	}

	mon.Stop()
	mon.Stop() // no-op
	if mon.Running() {
		t.Error("Expected monitor stopped")
	}
	if !h.Connected() {
		t.Error("Expected ticks to mark the handle connected")
	}

	count := checker.probeCount()
	time.Sleep(30 * time.Millisecond)
	if checker.probeCount() != count {
		t.Error("Monitor kept ticking after Stop")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mon, _ := newTestMonitor(&scriptedChecker{statuses: []probe.HealthStatus{unreachable}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickAgainstBackend(t *testing.T) {
	var up atomic.Bool
	up.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/health":
			w.Write([]byte(`{"status":"healthy","api":"ok"}`))
		case "/system/check-llm":
			w.Write([]byte(`{"status":"ok"}`))
		}
	}))
	defer server.Close()

	h := connection.New("http://localhost:8000")
	h.SetResolution(server.URL, false, connection.SourceHint, time.Now())
	mon := NewMonitor(Options{
		Checker: probe.New(probe.Options{Logger: logging.New(io.Discard)}),
		Handle:  h,
		Logger:  logging.New(io.Discard),
	})

	if snap := mon.Tick(context.Background()); !snap.Connected || !snap.ModelLoaded {
		t.Errorf("Expected connected with model, got %+v", snap)
	}

	up.Store(false)
	snap := mon.Tick(context.Background())
	if snap.Connected || snap.BaseURL != server.URL {
		t.Errorf("Expected disconnected at same URL, got %+v", snap)
	}
}

func TestDefaultInterval(t *testing.T) {
	mon := NewMonitor(Options{Handle: connection.New("http://localhost:8000")})
	if mon.Interval() != 15*time.Second {
		t.Errorf("Expected 15s default interval, got %v", mon.Interval())
	}
}
