package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vapviz/vap-server/internal/config"
	"github.com/vapviz/vap-server/internal/metrics"
	"github.com/vapviz/vap-server/internal/prepare"
	"github.com/vapviz/vap-server/internal/series"
	"github.com/vapviz/vap-server/internal/server"
	"github.com/vapviz/vap-server/internal/store"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "vap-server"
	serviceVersion    = "1.0.0"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	root := flag.String("root", "", "Storage root, overrides storage.root")
	port := flag.Int("port", 0, "HTTP port, overrides http.port")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *root, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("storage_root", cfg.Storage.Root),
		slog.Int("window_size", cfg.Pipeline.WindowSize),
		slog.Float64("frame_hz", cfg.Pipeline.FrameHz),
		slog.Int("default_topk", cfg.Pipeline.DefaultTopK),
		slog.Float64("vad_threshold", cfg.Pipeline.VADThreshold),
		slog.String("malformed_policy", cfg.Pipeline.MalformedPolicy),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// loadConfig reads the configuration file and applies command line overrides.
// A missing default configuration file is tolerated when -root is given.
func loadConfig(path, root string, port int) (*config.Config, error) {
	var overrides []config.Override
	if root != "" {
		overrides = append(overrides, func(c *config.Config) { c.Storage.Root = root })
	}
	if port != 0 {
		overrides = append(overrides, func(c *config.Config) { c.HTTP.Port = port })
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigPath && root != "" {
		return config.Parse(nil, overrides...)
	}
	return config.Load(path, overrides...)
}

// run wires the components and serves until SIGINT or SIGTERM
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	st, err := store.New(cfg.Storage.Root, cfg.Storage.CreateRoot, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	loader, err := series.NewLoader(series.MalformedPolicy(cfg.Pipeline.MalformedPolicy), logger)
	if err != nil {
		return fmt.Errorf("failed to create loader: %w", err)
	}

	pipeline, err := prepare.NewPipeline(prepare.Options{
		WindowSize:     cfg.Pipeline.WindowSize,
		FrameHz:        cfg.Pipeline.FrameHz,
		VocabularySize: cfg.Pipeline.VocabularySize,
		VADThreshold:   cfg.Pipeline.VADThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	logger.Info("Pipeline initialized",
		slog.Bool("smoothing", pipeline.Smoothing()),
	)

	httpServer := server.NewHTTPServer(cfg, logger, st, loader, pipeline, appMetrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("error stopping HTTP server: %w", err)
		}
		return nil
	})

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", httpServer.Addr()),
	)

	return g.Wait()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
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

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
