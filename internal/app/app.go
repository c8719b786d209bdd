// Package app assembles the client: connection handle, discovery, health
// monitoring, the API client and the resource facades.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/takuphilchan/alezia-client/internal/client"
	"github.com/takuphilchan/alezia-client/internal/config"
	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/discovery"
	"github.com/takuphilchan/alezia-client/internal/health"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/metrics"
	"github.com/takuphilchan/alezia-client/internal/probe"
	"github.com/takuphilchan/alezia-client/internal/resources"
)

// hintDebounce batches the burst of events a single hint rewrite produces
const hintDebounce = 100 * time.Millisecond

// App owns every long-lived client component
type App struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.ClientMetrics

	handle   *connection.Handle
	prober   *probe.Prober
	resolver *discovery.Resolver
	monitor  *health.Monitor
	client   *client.Client

	// Resources holds the typed API facades
	Resources *resources.Service

	mu      sync.Mutex
	started bool
}

// New wires the components from cfg. Nothing touches the network until
// Start, Connect or Run.
func New(cfg *config.Config, logger *logging.Logger) *App {
	logger = logging.OrDefault(logger)
	m := metrics.NewClientMetrics()

	handle := connection.New(cfg.DefaultBaseURL())

	prober := probe.New(probe.Options{
		Scheme:  cfg.Scheme,
		Timeout: cfg.ProbeTimeout(),
		Logger:  logger,
		Metrics: m,
	})

	resolver := discovery.NewResolver(discovery.Options{
		Host:        cfg.Host,
		PortStart:   cfg.PortStart,
		PortEnd:     cfg.PortEnd,
		DefaultPort: cfg.DefaultPort,
		Hint:        hintSources(cfg),
		HintTimeout: cfg.HintTimeout(),
		Prober:      prober,
		Logger:      logger,
		Metrics:     m,
	})

	monitor := health.NewMonitor(health.Options{
		Interval: cfg.HealthInterval(),
		Checker:  prober,
		Handle:   handle,
		Logger:   logger,
		Metrics:  m,
	})

	c := client.New(client.Options{
		Handle:          handle,
		Timeout:         cfg.RequestTimeout(),
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout(),
		RateLimit:       cfg.RateLimit,
		RequestID:       cfg.EnableRequestID,
		Logger:          logger,
		Metrics:         m,
	})

	var fallback client.Fallback
	if cfg.MockFallback {
		fallback = client.NewMockFallback()
	}

	return &App{
		cfg:      cfg,
		logger:   logger.With(map[string]any{"component": "app"}),
		metrics:  m,
		handle:   handle,
		prober:   prober,
		resolver: resolver,
		monitor:  monitor,
		client:   c,
		Resources: resources.New(c, resources.Options{
			Fallback: fallback,
			Logger:   logger,
			Metrics:  m,
		}),
	}
}

// hintSources returns the configured hints in priority order, or nil
func hintSources(cfg *config.Config) discovery.HintSource {
	var sources []discovery.HintSource
	if cfg.HintFile != "" {
		sources = append(sources, discovery.FileHint{Path: cfg.HintFile})
	}
	if cfg.HintURL != "" {
		sources = append(sources, discovery.HTTPHint{URL: cfg.HintURL})
	}
	if cfg.HintListener {
		sources = append(sources, discovery.ListenerHint{Host: cfg.Host, Start: cfg.PortStart, End: cfg.PortEnd})
	}
	if len(sources) == 0 {
		return nil
	}
	return discovery.FirstOf(sources...)
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config { return a.cfg }

// Handle returns the shared connection handle
func (a *App) Handle() *connection.Handle { return a.handle }

// Client returns the API client
func (a *App) Client() *client.Client { return a.client }

// Metrics returns the client metrics
func (a *App) Metrics() *metrics.ClientMetrics { return a.metrics }

// Monitor returns the health monitor
func (a *App) Monitor() *health.Monitor { return a.monitor }

// Prober returns the health prober
func (a *App) Prober() *probe.Prober { return a.prober }

// Rediscover runs a resolution cycle and writes the result to the handle.
// When a backend answers, its model state is refreshed as well.
func (a *App) Rediscover(ctx context.Context) discovery.Resolution {
	res := a.resolver.ResolveInto(ctx, a.handle)
	if res.Connected {
		a.monitor.Tick(ctx)
	}
	return res
}

// Connect resolves the endpoint and, while nothing is connected, retries the
// health check against it up to StartupAttempts times in total.
func (a *App) Connect(ctx context.Context) (connection.Snapshot, error) {
	res := a.Rediscover(ctx)
	snap := a.handle.Snapshot()

	delay := a.cfg.StartupRetryDelay()
	for attempt := 1; !snap.Connected && attempt < a.cfg.StartupAttempts; attempt++ {
		a.logger.Debug("backend not ready, retrying", map[string]any{
			"attempt":  attempt + 1,
			"base_url": snap.BaseURL,
		})
		select {
		case <-ctx.Done():
			return a.handle.Snapshot(), ctx.Err()
		case <-time.After(delay):
		}
		snap = a.monitor.Tick(ctx)
	}

	if err := ctx.Err(); err != nil {
		return snap, err
	}

	if snap.Connected {
		a.logger.Info("connected to backend", map[string]any{
			"base_url":     snap.BaseURL,
			"source":       string(snap.Source),
			"model_loaded": snap.ModelLoaded,
			"attempts":     res.Attempts,
		})
	} else {
		a.logger.Warn("backend unavailable, continuing disconnected", map[string]any{
			"base_url": snap.BaseURL,
		})
	}
	return snap, nil
}

// Start connects and then starts the background monitor
func (a *App) Start(ctx context.Context) (connection.Snapshot, error) {
	snap, err := a.Connect(ctx)
	if err != nil {
		return snap, err
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	a.monitor.Start()
	return snap, nil
}

// Stop stops the background monitor. Safe to call more than once.
func (a *App) Stop() {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if started {
		a.monitor.Stop()
	}
}

// Run connects and blocks running the health monitor and, when configured,
// the hint file watcher until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Connect(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.monitor.Run(gctx)
	})
	if a.cfg.WatchHint && a.cfg.HintFile != "" {
		g.Go(func() error {
			return a.watchHint(gctx)
		})
	}
	return g.Wait()
}

// watchHint rediscovers whenever the hint file is written, created or
// replaced. The directory is watched so atomic renames are seen.
func (a *App) watchHint(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create hint watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(a.cfg.HintFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	a.logger.Debug("watching port hint", map[string]any{"path": target})

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(hintDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("hint watcher error", map[string]any{"error": err})

		case <-debounce:
			debounce = nil
			res := a.Rediscover(ctx)
			a.logger.Info("port hint changed, rediscovered backend", map[string]any{
				"base_url":  res.BaseURL,
				"connected": res.Connected,
				"source":    string(res.Source),
			})
		}
	}
}
