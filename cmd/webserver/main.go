package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcncl/webserver/internal/config"
	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/logging"
	"github.com/mcncl/webserver/internal/metrics"
	"github.com/mcncl/webserver/internal/middleware/request"
	"github.com/mcncl/webserver/internal/middleware/security"
	"github.com/mcncl/webserver/internal/server"
	"github.com/mcncl/webserver/internal/service"
	"github.com/mcncl/webserver/internal/telemetry"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (json, text, dev)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("Failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configFile, overrides(*logLevel, *logFormat))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded", "config", cfg.String())

	ctx := context.Background()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.InitMetrics(reg); err != nil {
			logger.Error("Failed to initialize metrics", "error", err)
			os.Exit(1)
		}
	}

	var tracing service.Layer
	if cfg.Telemetry.EnableTracing {
		provider, err := startTelemetry(ctx, cfg)
		if err != nil {
			logger.Error("Failed to start telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("Telemetry shutdown error", "error", err)
			}
		}()
		tracing = provider.Layer()
	}

	srv, err := newServer(cfg, logger, reg, tracing)
	if err != nil {
		logger.Error("Failed to create server", "error", errors.WithDetails(err, map[string]interface{}{
			"address": cfg.Address(),
		}))
		os.Exit(1)
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	// Wait for interrupt signal or a fatal serve error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down server", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := <-serveErr; err != nil {
		logger.Error("HTTP server error", "error", err)
	}

	logger.Info("Server shutdown complete")
}

// overrides turns non-empty flags into a config override.
func overrides(level, format string) *config.Config {
	if level == "" && format == "" {
		return nil
	}
	return &config.Config{
		Server: config.ServerConfig{
			LogLevel:  level,
			LogFormat: format,
		},
	}
}

func startTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Provider, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.Telemetry.ServiceName
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.SamplingRatio = cfg.Telemetry.TraceSamplingRatio

	provider, err := telemetry.NewProvider(tcfg)
	if err != nil {
		return nil, err
	}
	if err := provider.Start(ctx); err != nil {
		return nil, err
	}
	return provider, nil
}

// buildLayers splits the configured decorators around the logging layer.
// Request ids and tracing wrap logging so both are visible in its events.
// Note: The order of inner layers is important! Unknown clients are turned
// away first, security headers see the final response, and global limits
// apply before per-client ones.
func buildLayers(cfg *config.Config, tracing service.Layer) (outer, inner []service.Layer, err error) {
	outer = []service.Layer{
		request.WithRequestID(),
		tracing,
	}

	if len(cfg.Security.AllowedIPs) > 0 {
		allowList, err := security.NewIPAllowList(cfg.Security.AllowedIPs)
		if err != nil {
			return nil, nil, err
		}
		inner = append(inner, security.WithAllowList(allowList))
	}

	if cfg.Security.SecurityHeaders {
		inner = append(inner, security.WithSecurityHeaders(security.SecurityConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			AllowedMethods: cfg.Security.AllowedMethods,
			AllowedHeaders: cfg.Security.AllowedHeaders,
			MaxAge:         3600,
		}))
	}
	inner = append(inner,
		security.WithRateLimit(cfg.Security.RateLimit, cfg.Security.RateBurst),
		security.WithIPRateLimit(cfg.Security.IPRateLimit, cfg.Security.RateBurst),
	)
	return outer, inner, nil
}

// newServer wires the greeting handler and every configured layer into a
// server. A nil registry disables the metrics endpoint.
func newServer(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry, tracing service.Layer) (*server.Server, error) {
	outer, inner, err := buildLayers(cfg, tracing)
	if err != nil {
		return nil, err
	}

	scfg := server.Config{
		Addr:           cfg.Address(),
		Base:           service.Greeting(cfg.Server.Greeting),
		Logger:         logger,
		OuterLayers:    outer,
		InnerLayers:    inner,
		RequestTimeout: cfg.Server.RequestTimeout,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: int64(cfg.Server.MaxRequestSize),
		MetricsPath:    cfg.Metrics.Path,
	}
	if reg != nil {
		scfg.Gatherer = reg
	}
	return server.New(scfg)
}
