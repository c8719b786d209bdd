// Package health keeps a resolved connection handle fresh in the background.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/internal/probe"
)

// DefaultInterval between background checks
const DefaultInterval = 15 * time.Second

// Checker is the probe capability the monitor needs
type Checker interface {
	ProbeURL(ctx context.Context, baseURL string) probe.HealthStatus
	CheckModel(ctx context.Context, baseURL string) (loaded bool, ok bool)
	Timeout() time.Duration
}

// Options configures a Monitor
type Options struct {
	Interval time.Duration
	Checker  Checker
	Handle   *connection.Handle
	Logger   *logging.Logger
	Metrics  *metrics.ClientMetrics
}

// Monitor periodically re-checks the handle's endpoint. It updates
// Connected, ModelLoaded and LastCheckedAt and never changes BaseURL.
type Monitor struct {
	interval time.Duration
	checker  Checker
	handle   *connection.Handle
	logger   *logging.Logger
	metrics  *metrics.ClientMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. It does nothing until Start or Run.
func NewMonitor(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		checker:  opts.Checker,
		handle:   opts.Handle,
		logger:   logging.OrDefault(opts.Logger).With(map[string]any{"component": "health"}),
		metrics:  opts.Metrics,
	}
}

// Interval returns the check period
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start runs the check loop in the background. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		m.Run(ctx)
	}()
}

// Stop halts a loop started with Start and waits for it to exit.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop started by Start is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Run ticks every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one health check. Both requests share a single probe
// deadline, and a panic inside the tick is logged rather than propagated.
func (m *Monitor) Tick(ctx context.Context) (snap connection.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check panicked", map[string]any{"panic": fmt.Sprint(r)})
			snap = m.handle.Snapshot()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.checker.Timeout())
	defer cancel()

	before := m.handle.Snapshot()
	status := m.checker.ProbeURL(ctx, before.BaseURL)
	connected := status.Healthy()

	var modelLoaded *bool
	if connected {
		if loaded, ok := m.checker.CheckModel(ctx, before.BaseURL); ok {
			modelLoaded = &loaded
		}
	}

	snap, applied := m.handle.UpdateHealthFor(before.Generation, connected, modelLoaded, time.Now())
	if !applied {
		m.count("stale")
		return snap
	}

	m.count(checkResult(status))
	if m.metrics != nil {
		m.metrics.Connected.SetBool(snap.Connected)
		m.metrics.ModelLoaded.SetBool(snap.ModelLoaded)
	}
	m.logTransition(before, snap, status)
	return snap
}

func checkResult(status probe.HealthStatus) string {
	if status.Reason != probe.ReasonNone {
		return string(status.Reason)
	}
	return string(status.Status)
}

func (m *Monitor) count(result string) {
	if m.metrics != nil {
		m.metrics.HealthChecks.Inc(result)
	}
}

func (m *Monitor) logTransition(prev, next connection.Snapshot, status probe.HealthStatus) {
	if prev.Connected != next.Connected {
		to := "disconnected"
		if next.Connected {
			to = "connected"
		}
		if m.metrics != nil {
			m.metrics.Transitions.Inc(to)
		}

		if next.Connected {
			m.logger.Info("backend connection restored", map[string]any{
				"url":          next.BaseURL,
				"model_loaded": next.ModelLoaded,
			})
		} else {
			m.logger.Warn("backend connection lost", map[string]any{
				"url":            next.BaseURL,
				"status":         string(status.Status),
				"reason":         string(status.Reason),
				"backend_status": status.Backend,
			})
		}
		return
	}

	if prev.ModelLoaded != next.ModelLoaded {
		m.logger.Info("model availability changed", map[string]any{
			"url":          next.BaseURL,
			"model_loaded": next.ModelLoaded,
		})
	}
}
