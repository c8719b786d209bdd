package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/takuphilchan/alezia-client/internal/app"
	"github.com/takuphilchan/alezia-client/internal/client"
	"github.com/takuphilchan/alezia-client/internal/config"
	"github.com/takuphilchan/alezia-client/internal/logging"
	"github.com/takuphilchan/alezia-client/internal/output"
	"github.com/takuphilchan/alezia-client/internal/resources"
)

// Visual identity constants
const (
	// Colors (ANSI escape codes)
	colorReset = "\033[0m"
	colorBold  = "\033[1m"

	// Brand colors
	brandPrimary   = "\033[38;5;45m"  // Bright cyan
	brandSecondary = "\033[38;5;141m" // Purple
	brandAccent    = "\033[38;5;226m" // Yellow
	brandSuccess   = "\033[38;5;78m"  // Green
	brandError     = "\033[38;5;196m" // Red
	brandMuted     = "\033[38;5;240m" // Gray

	boxH = "─"

	iconBolt    = "⚡"
	iconCheck   = "✓"
	iconCross   = "✗"
	iconArrow   = "→"
	iconDot     = "•"
	iconDiamond = "◆"
)

var (
	// Global flags
	configPath string
	jsonFlag   bool
	hostFlag   string
	logLevel   string
	mockFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "alezia",
	Short: "Client for the Alezia AI character backend",
	Long: `alezia finds a running Alezia backend on the local port band, tracks
its health, and talks to its character, chat, memory and trait APIs.

The backend is located by port hint (api_port.txt) first and by scanning
ports 8000-8020 otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		output.JSONMode = jsonFlag
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of formatted output")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Backend host (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "Answer chat with synthetic replies when the backend is unreachable")
}

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

// execute runs the root command and reports a failure once
func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if output.JSONMode {
			output.Error("Command failed", err)
		} else {
			printError(describeError(err))
		}
	}
	return err
}

// loadConfig applies file, environment and flag layers
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithPriority(configPath)
	if err != nil {
		return nil, err
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if mockFlag {
		cfg.MockFallback = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp builds the client stack. The returned cleanup flushes the logger.
func newApp() (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithOptions(logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
		File:  cfg.LogFile,
	})
	a := app.New(cfg, logger)
	return a, func() {
		a.Stop()
		logger.Close()
	}, nil
}

// connectedApp builds the stack and resolves the backend once, for one-shot
// API commands. Resolution failures are not fatal; requests still go to the
// default endpoint and report their own errors.
func connectedApp(ctx context.Context) (*app.App, func(), error) {
	a, cleanup, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	a.Rediscover(ctx)
	if err := ctx.Err(); err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, cleanup, nil
}

// describeError renders err the way the web UI does: backend detail for
// remote errors, a reachability hint for transport failures.
func describeError(err error) string {
	switch {
	case errors.Is(err, resources.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, client.ErrCircuitOpen):
		return "Backend keeps failing; requests are paused for a while"
	case errors.Is(err, client.ErrNotResolved):
		return "No backend endpoint is known"
	}
	if remote := client.AsRemoteError(err); remote != nil {
		if remote.NotFound() && remote.Detail == "" {
			return "Not found"
		}
		return remote.Error()
	}
	if transport := client.AsTransportError(err); transport != nil {
		return fmt.Sprintf("Cannot reach the backend: %v", transport.Err)
	}
	return err.Error()
}

func printSection(title string) {
	if output.JSONMode {
		return
	}
	fmt.Printf("%s%s%s %s%s\n", brandPrimary, iconDiamond, colorReset, colorBold, title)
	fmt.Printf("%s%s%s\n", brandMuted, strings.Repeat(boxH, 50), colorReset)
}

func printSuccess(message string) {
	fmt.Printf("%s%s%s %s\n", brandSuccess, iconCheck, colorReset, message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "%s%s%s %s\n", brandError, iconCross, colorReset, message)
}

func printInfo(message string) {
	fmt.Printf("%s%s%s %s\n", brandPrimary, iconArrow, colorReset, message)
}

func printWarning(message string) {
	fmt.Printf("%s%s%s %s\n", brandAccent, iconBolt, colorReset, message)
}

func printItem(label, value string) {
	fmt.Printf("  %s%-18s%s %s%s%s\n", brandMuted, label+":", colorReset, colorBold, value, colorReset)
}

func printBullet(text string) {
	fmt.Printf("  %s%s%s %s\n", brandSecondary, iconDot, colorReset, text)
}

func yesNo(v bool) string {
	if v {
		return brandSuccess + "yes" + colorReset
	}
	return brandError + "no" + colorReset
}
