// Package probe checks whether an Alezia backend answers on a given endpoint.
//
// Probes never return errors. Every failure mode (refused connection, timeout,
// non-2xx status, malformed body) folds into StatusUnreachable so callers can
// walk a list of candidates with a plain loop.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

// MaxTimeout is the upper bound for a single probe
const MaxTimeout = 500 * time.Millisecond

// maxBody caps how much of a health response is read
const maxBody = 64 << 10

// Status is the outcome of a health probe
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnreachable Status = "unreachable"
)

// Reason explains why a probe was not healthy. Used for logs and metrics only.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonRefused   Reason = "refused"
	ReasonTimeout   Reason = "timeout"
	ReasonBadStatus Reason = "bad_status"
	ReasonMalformed Reason = "malformed"
	ReasonError     Reason = "error"
)

// HealthStatus is the transient result of one probe
type HealthStatus struct {
	Status      Status
	ModelLoaded bool
	Backend     string // Raw status string reported by the backend
	Reason      Reason
	Latency     time.Duration
}

// Healthy reports whether the backend answered "healthy"
func (h HealthStatus) Healthy() bool {
	return h.Status == StatusHealthy
}

// Options configures a Prober
type Options struct {
	Scheme    string        // http or https, defaults to http
	Timeout   time.Duration // Per-probe deadline, capped at MaxTimeout
	Transport http.RoundTripper
	Logger    *logging.Logger
	Metrics   *metrics.ClientMetrics
}

// Prober sends health and capability probes
type Prober struct {
	scheme     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.ClientMetrics
}

// New creates a prober
func New(opts Options) *Prober {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}

	timeout := opts.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: func(req *http.Request) (*url.URL, error) {
				return nil, nil // Backend is local; never go through a proxy
			},
			DialContext: (&net.Dialer{
				Timeout: timeout,
			}).DialContext,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		}
	}

	return &Prober{
		scheme:     scheme,
		timeout:    timeout,
		httpClient: &http.Client{Transport: transport},
		logger:     logging.OrDefault(opts.Logger).With(map[string]any{"component": "probe"}),
		metrics:    opts.Metrics,
	}
}

// Timeout returns the per-probe deadline
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// BaseURL builds scheme://host:port for a candidate
func (p *Prober) BaseURL(host string, port int) string {
	return fmt.Sprintf("%s://%s", p.scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}

// Probe checks GET http://{host}:{port}/health
func (p *Prober) Probe(ctx context.Context, host string, port int) HealthStatus {
	return p.ProbeURL(ctx, p.BaseURL(host, port))
}

// ProbeURL checks {baseURL}/health
func (p *Prober) ProbeURL(ctx context.Context, baseURL string) HealthStatus {
	start := time.Now()
	status := p.probe(ctx, baseURL)
	status.Latency = time.Since(start)

	if p.metrics != nil {
		result := string(status.Status)
		if status.Reason != ReasonNone {
			result = string(status.Reason)
		}
		p.metrics.ProbesTotal.Inc(result)
		p.metrics.ProbeDuration.Observe(status.Latency.Seconds())
	}

	if p.logger.Enabled(logging.LevelDebug) {
		p.logger.Debug("health probe", map[string]any{
			"url":        baseURL,
			"status":     string(status.Status),
			"reason":     string(status.Reason),
			"latency_ms": status.Latency.Milliseconds(),
		})
	}

	return status
}

func (p *Prober) probe(ctx context.Context, baseURL string) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.get(ctx, strings.TrimRight(baseURL, "/")+"/health")
	if err != nil {
		return HealthStatus{Status: StatusUnreachable, Reason: classify(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return HealthStatus{Status: StatusUnreachable, Reason: ReasonBadStatus}
	}

	var body struct {
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		reason := ReasonMalformed
		if ctx.Err() != nil {
			reason = ReasonTimeout
		}
		return HealthStatus{Status: StatusUnreachable, Reason: reason}
	}
	if body.Status == nil {
		return HealthStatus{Status: StatusUnreachable, Reason: ReasonMalformed}
	}

	if *body.Status == string(StatusHealthy) {
		return HealthStatus{Status: StatusHealthy, Backend: *body.Status}
	}
	return HealthStatus{Status: StatusDegraded, Backend: *body.Status}
}

// CheckModel asks {baseURL}/system/check-llm whether the language model is loaded.
// ok is false when the capability endpoint gave no usable answer.
func (p *Prober) CheckModel(ctx context.Context, baseURL string) (loaded bool, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.get(ctx, strings.TrimRight(baseURL, "/")+"/system/check-llm")
	if err != nil {
		p.logger.Debug("capability probe failed", map[string]any{"url": baseURL, "reason": string(classify(ctx, err))})
		return false, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return false, false
	}

	var status api.LLMStatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&status); err != nil {
		return false, false
	}
	return status.IsLoaded(), true
}

func (p *Prober) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return p.httpClient.Do(req)
}

// classify maps a transport error to a Reason
func classify(ctx context.Context, err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if isConnRefused(err) {
		return ReasonRefused
	}
	return ReasonError
}
