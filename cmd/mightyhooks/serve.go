package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mightyhooks/internal/config"
	"mightyhooks/internal/dispatch"
	"mightyhooks/internal/ingress"
	"mightyhooks/internal/journal"
	"mightyhooks/internal/logging"
	"mightyhooks/internal/metrics"
	"mightyhooks/internal/server"
	"mightyhooks/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	host     string
	port     int
	logLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook relay",
	Long: `Start the HTTP server that receives webhooks and relays them.

Every accepted call is delivered to all destinations of its route before
the caller gets 204 No Content. Failed deliveries are logged, not retried.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags win over file and environment
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return fmt.Errorf("%w:\n%s", config.ErrInvalidConfig, strings.Join(errs, "\n"))
	}

	logger, closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting mightyhooks", "version", version)
	logger.Info("Configuration loaded",
		"config", cfg.Path(),
		"fingerprint", cfg.Fingerprint(),
		"hooks", len(cfg.Hooks))

	for _, w := range cfg.Warnings() {
		logger.Warn("Configuration warning", "warning", w)
	}

	if len(cfg.Hooks) == 0 {
		logger.Warn("No hooks configured in config file", "config", cfg.Path())
		logger.Warn("The server will start but every call will be answered 404 until hooks are added")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to flush traces", "error", err)
			}
		}()
	}

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// buildServer wires the relay pipeline for cfg. cleanup releases the
// journal and must be called after the server stops.
func buildServer(cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	cleanup := func() {}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Tracing.Enabled {
		transport = telemetry.Transport(transport)
	}

	var recorders []dispatch.Recorder

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		recorders = append(recorders, m)
	}

	if cfg.Journal.Path != "" {
		logger.Info("Opening delivery journal", "db", cfg.Journal.Path)
		j, err := journal.Open(cfg.Journal.Path, logging.WithComponent(logger, "journal"))
		if err != nil {
			logger.Error("Failed to open delivery journal", "error", err)
			return nil, nil, fmt.Errorf("failed to open delivery journal: %w", err)
		}
		cleanup = func() { _ = j.Close() }
		recorders = append(recorders, j)
	}

	routes := cfg.Routes()

	validator := ingress.NewValidator(routes, ingress.Options{
		BehindProxy: cfg.BehindProxy,
		MaxBodySize: cfg.MaxBodyBytes(),
	}, logging.WithComponent(logger, "ingress"))

	dispatcher := dispatch.New(dispatch.Options{
		Client:        dispatch.NewClient(time.Duration(cfg.DeliveryTimeout), transport),
		MaxConcurrent: cfg.MaxConcurrentDeliveries,
		Recorders:     recorders,
	}, logging.WithComponent(logger, "dispatch"))

	opts := server.Options{
		Addr:            cfg.Addr(),
		DispatchTimeout: time.Duration(cfg.DispatchTimeout),
		Tracing:         cfg.Tracing.Enabled,
	}
	if cfg.HTTPS != nil {
		opts.TLSCert = cfg.HTTPS.Cert
		opts.TLSKey = cfg.HTTPS.Key
	}

	srv := server.NewServer(routes, validator, dispatcher, m, opts, logging.WithComponent(logger, "server"))
	return srv, cleanup, nil
}

// loadConfig locates and loads the config named by --config or the
// default search paths.
func loadConfig() (*config.Config, error) {
	path, err := config.Locate(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, nil
}

// discardLogger is used by commands whose output is for humans.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
