// Package discovery locates a live Alezia backend among candidate ports.
//
// A resolution pass tries the hinted port first, then walks the band in
// ascending order, one probe at a time. When nothing answers it settles on
// the default candidate with Connected=false. It never fails.
package discovery

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/internal/probe"
)

// MaxHintTimeout bounds how long a hint source may take
const MaxHintTimeout = 300 * time.Millisecond

// Prober is the probe capability the resolver needs
type Prober interface {
	Probe(ctx context.Context, host string, port int) probe.HealthStatus
	BaseURL(host string, port int) string
}

// Resolution is the outcome of one resolver pass
type Resolution struct {
	BaseURL   string            `json:"base_url"`
	Port      int               `json:"port"`
	Connected bool              `json:"connected"`
	Source    connection.Source `json:"source"`
	HintPort  int               `json:"hint_port,omitempty"` // Accepted hint, 0 if none
	Attempts  int               `json:"attempts"`            // Probes sent
	Duration  time.Duration     `json:"duration"`
}

// Options configures a Resolver
type Options struct {
	Host        string
	PortStart   int
	PortEnd     int
	DefaultPort int
	Hint        HintSource // Optional
	HintTimeout time.Duration
	Prober      Prober
	Logger      *logging.Logger
	Metrics     *metrics.ClientMetrics
}

// Resolver finds the backend endpoint
type Resolver struct {
	host        string
	start       int
	end         int
	defaultPort int
	hint        HintSource
	hintTimeout time.Duration
	prober      Prober
	logger      *logging.Logger
	metrics     *metrics.ClientMetrics

	group singleflight.Group
}

// NewResolver creates a resolver
func NewResolver(opts Options) *Resolver {
	hintTimeout := opts.HintTimeout
	if hintTimeout <= 0 || hintTimeout > MaxHintTimeout {
		hintTimeout = MaxHintTimeout
	}

	defaultPort := opts.DefaultPort
	if defaultPort == 0 {
		defaultPort = opts.PortStart
	}

	prober := opts.Prober
	if prober == nil {
		prober = probe.New(probe.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	}

	return &Resolver{
		host:        opts.Host,
		start:       opts.PortStart,
		end:         opts.PortEnd,
		defaultPort: defaultPort,
		hint:        opts.Hint,
		hintTimeout: hintTimeout,
		prober:      prober,
		logger:      logging.OrDefault(opts.Logger).With(map[string]any{"component": "resolver"}),
		metrics:     opts.Metrics,
	}
}

// InBand reports whether port belongs to the scan band
func (r *Resolver) InBand(port int) bool {
	return port >= r.start && port <= r.end
}

// DefaultBaseURL is the endpoint used when nothing answers
func (r *Resolver) DefaultBaseURL() string {
	return r.prober.BaseURL(r.host, r.defaultPort)
}

// Resolve runs one resolution pass. Concurrent callers share a single pass
// and receive the same result.
func (r *Resolver) Resolve(ctx context.Context) Resolution {
	v, _, _ := r.group.Do("resolve", func() (interface{}, error) {
		return r.resolve(ctx), nil
	})
	return v.(Resolution)
}

// ResolveInto resolves and records the result as a new cycle on h
func (r *Resolver) ResolveInto(ctx context.Context, h *connection.Handle) Resolution {
	res := r.Resolve(ctx)
	// BaseURL is never empty here
	_ = h.SetResolution(res.BaseURL, res.Connected, res.Source, time.Now())
	return res
}

func (r *Resolver) resolve(ctx context.Context) Resolution {
	started := time.Now()
	var res Resolution

	if port, ok := r.readHint(ctx); ok {
		res.HintPort = port
		res.Attempts++
		if r.prober.Probe(ctx, r.host, port).Healthy() {
			return r.found(res, port, connection.SourceHint, started)
		}
		r.logger.Debug("hinted port not healthy, scanning band", map[string]any{"port": port})
	}

	for port := r.start; port <= r.end; port++ {
		if ctx.Err() != nil {
			break
		}
		res.Attempts++
		if r.prober.Probe(ctx, r.host, port).Healthy() {
			return r.found(res, port, connection.SourceScan, started)
		}
	}

	res.BaseURL = r.DefaultBaseURL()
	res.Port = r.defaultPort
	res.Source = connection.SourceDefault
	res.Duration = time.Since(started)

	if r.metrics != nil {
		r.metrics.ResolutionsTotal.Inc(string(res.Source))
	}
	fields := map[string]any{
		"default":     res.BaseURL,
		"attempts":    res.Attempts,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if err := ctx.Err(); err != nil {
		fields["error"] = err
	}
	r.logger.Warn("no backend answered, using default endpoint", fields)
	return res
}

func (r *Resolver) found(res Resolution, port int, source connection.Source, started time.Time) Resolution {
	res.BaseURL = r.prober.BaseURL(r.host, port)
	res.Port = port
	res.Connected = true
	res.Source = source
	res.Duration = time.Since(started)

	if r.metrics != nil {
		r.metrics.ResolutionsTotal.Inc(string(source))
	}
	r.logger.Info("backend resolved", map[string]any{
		"url":         res.BaseURL,
		"source":      string(source),
		"attempts":    res.Attempts,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res
}

// readHint returns an in-band hinted port, if the hint source has one
func (r *Resolver) readHint(ctx context.Context) (int, bool) {
	if r.hint == nil {
		return 0, false
	}

	hctx, cancel := context.WithTimeout(ctx, r.hintTimeout)
	defer cancel()

	port, err := r.hint.Port(hctx)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNoHint) {
			outcome = "missing"
		} else {
			r.logger.Debug("port hint unavailable", map[string]any{"error": err})
		}
		r.countHint(outcome)
		return 0, false
	}

	if !r.InBand(port) {
		r.logger.Warn("ignoring port hint outside scan band", map[string]any{
			"port":  port,
			"start": r.start,
			"end":   r.end,
		})
		r.countHint("out_of_band")
		return 0, false
	}

	r.countHint("accepted")
	return port, true
}

func (r *Resolver) countHint(outcome string) {
	if r.metrics != nil {
		r.metrics.HintsTotal.Inc(outcome)
	}
}
