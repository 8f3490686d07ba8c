// Command polyarb is the entry point for the arbitrage scanner. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// Positional arguments are condition IDs for single and once modes. With
// -event, the IDs are treated as the markets of one multi-outcome event.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanyoungcy/polyarb/internal/app"
	"github.com/alanyoungcy/polyarb/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override operating mode (watch, single, once, monitor)")
	pattern := flag.String("pattern", "", "override market slug filter (case-insensitive regex)")
	dryRun := flag.Bool("dry-run", false, "detect and log opportunities but never trade")
	event := flag.Bool("event", false, "treat positional condition IDs as one multi-outcome event")
	interval := flag.Duration("interval", 0, "override scan interval (e.g. 3s)")
	cooldown := flag.Duration("cooldown", 0, "override post-hit cooldown (e.g. 5m)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Flag overrides.
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *pattern != "" {
		cfg.Scanner.Pattern = *pattern
	}
	if *dryRun {
		cfg.Scanner.DryRun = true
	}
	if *interval > 0 {
		cfg.Scanner.Interval.Duration = *interval
	}
	if *cooldown > 0 {
		cfg.Scanner.Cooldown.Duration = *cooldown
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("polyarb starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	application.Targets = targetIDs(flag.Args())
	application.Event = *event
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully",
				slog.Duration("uptime", time.Since(start)),
			)
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("polyarb stopped")
}

// targetIDs flattens positional arguments into condition IDs, accepting
// both space- and comma-separated lists.
func targetIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if id := strings.TrimSpace(part); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
