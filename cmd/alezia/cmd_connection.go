package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/takuphilchan/alezia-client/internal/app"
	"github.com/takuphilchan/alezia-client/internal/connection"
	"github.com/takuphilchan/alezia-client/internal/discovery"
	"github.com/takuphilchan/alezia-client/internal/output"
)

var metricsAddr string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Locate the backend on the port band",
	Long: `Runs one resolution pass: the port hint first, then every port of the
band in ascending order, falling back to the default port when nothing
answers.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend connection and model status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep checking backend health and report changes",
	Long: `Connects, then re-checks the backend at the configured health interval
until interrupted. With watch_hint enabled, rewriting the hint file triggers
a new discovery.`,
	Example: `  alezia watch
  alezia watch --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print client metrics after one discovery pass",
	Args:  cobra.NoArgs,
	RunE:  runMetrics,
}

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(discoverCmd, statusCmd, watchCmd, metricsCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	res := a.Rediscover(cmd.Context())
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	if output.JSONMode {
		output.PrintDiscovery(output.DiscoveryInfo{
			BaseURL:    res.BaseURL,
			Port:       res.Port,
			Connected:  res.Connected,
			Source:     string(res.Source),
			HintPort:   res.HintPort,
			Attempts:   res.Attempts,
			DurationMS: res.Duration.Milliseconds(),
		})
		return nil
	}

	printSection("Backend Discovery")
	if res.Connected {
		printSuccess(fmt.Sprintf("Backend found at %s", res.BaseURL))
	} else {
		printWarning(fmt.Sprintf("No backend answered, using default %s", res.BaseURL))
	}
	printItem("Source", string(res.Source))
	if res.HintPort != 0 {
		printItem("Hinted port", strconv.Itoa(res.HintPort))
	}
	printItem("Probes", strconv.Itoa(res.Attempts))
	printItem("Took", res.Duration.Round(time.Millisecond).String())
	fmt.Println()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, cleanup, err := connectedApp(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	snap := a.Handle().Snapshot()
	info := statusInfo(a, snap)
	if snap.Connected {
		if owner, ok := localOwner(cmd.Context(), a, snap.BaseURL); ok {
			info.Process = owner.Name
			info.PID = owner.PID
		}
	}

	if output.JSONMode {
		output.PrintStatus(info)
		return nil
	}

	printSection("Backend Status")
	printItem("Endpoint", info.BaseURL)
	printItem("Connected", yesNo(info.Connected))
	printItem("Model loaded", yesNo(info.ModelLoaded))
	printItem("Found via", info.Source)
	if info.LastCheckedAt != "" {
		printItem("Last checked", info.LastCheckedAt)
	}
	if info.PID != 0 {
		name := info.Process
		if name == "" {
			name = "unknown"
		}
		printItem("Process", fmt.Sprintf("%s (pid %d)", name, info.PID))
	}
	printItem("Circuit breaker", info.Breaker)
	fmt.Println()

	if !snap.Connected {
		printInfo("Start the backend, then run 'alezia discover'")
	}
	return nil
}

func statusInfo(a *app.App, snap connection.Snapshot) output.StatusInfo {
	info := output.StatusInfo{
		BaseURL:     snap.BaseURL,
		Connected:   snap.Connected,
		ModelLoaded: snap.ModelLoaded,
		Source:      string(snap.Source),
		Breaker:     a.Client().BreakerState(),
	}
	if !snap.LastCheckedAt.IsZero() {
		info.LastCheckedAt = snap.LastCheckedAt.Format(time.RFC3339)
	}
	return info
}

// localOwner finds the process serving baseURL when it is on this machine
func localOwner(ctx context.Context, a *app.App, baseURL string) (discovery.Owner, bool) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return discovery.Owner{}, false
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return discovery.Owner{}, false
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return discovery.Owner{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return discovery.Owner{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.Prober().Timeout())
	defer cancel()
	owner, err := discovery.ListenerOwner(ctx, port)
	if err != nil {
		return discovery.Owner{}, false
	}
	return owner, true
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	unsubscribe := a.Handle().OnChange(func(prev, next connection.Snapshot) {
		if !connection.StatusChanged(prev, next) && prev.BaseURL == next.BaseURL {
			return
		}
		if output.JSONMode {
			output.PrintJSON(statusInfo(a, next))
			return
		}
		stamp := time.Now().Format("15:04:05")
		switch {
		case next.Connected:
			printSuccess(fmt.Sprintf("%s connected to %s (model loaded: %s)", stamp, next.BaseURL, yesNo(next.ModelLoaded)))
		default:
			printWarning(fmt.Sprintf("%s disconnected from %s", stamp, next.BaseURL))
		}
	})
	defer unsubscribe()

	if !output.JSONMode {
		printInfo(fmt.Sprintf("Checking backend health every %s (Ctrl+C to stop)", a.Monitor().Interval()))
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return a.Run(ctx)
	})
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsMux(a *app.App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics().Registry.Handler())
	return mux
}

func runMetrics(cmd *cobra.Command, args []string) error {
	a, cleanup, err := connectedApp(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	text := a.Metrics().Registry.Collect()
	if output.JSONMode {
		return output.PrintJSON(map[string]string{"exposition": text})
	}
	fmt.Print(text)
	return nil
}
