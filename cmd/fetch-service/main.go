package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/common/config"
	logutil "github.com/crawlkit/browserfetch/internal/common/logger"
	"github.com/crawlkit/browserfetch/internal/common/metricsserver"
	"github.com/crawlkit/browserfetch/internal/fetcher"
	"github.com/crawlkit/browserfetch/internal/fetcher/metrics"
	"github.com/crawlkit/browserfetch/internal/fetcher/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("c", "configs/fetch-service.yaml",
		"Path to FS configuration file")
	flag.Parse()

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	// Load configuration
	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	cfg, err := config.LoadFSConfig(absPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Reconfigure logger based on config settings (uses INFO level during
	// startup if configured level is higher)
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}

	logger := dynamicLogger.Logger

	logger.Info("Fetch Service starting",
		zap.String("fs", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.String("browser", cfg.Browser.Kind))

	// Build fetcher options from YAML config
	opts := service.BuildOptions(cfg)
	if err := opts.Validate(); err != nil {
		logger.Fatal("Invalid browser configuration", zap.Error(err))
	}

	// Initialize metrics collector (before fetcher creation)
	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	// Start separate metrics server if needed
	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	logger.Info("Initializing browser fetcher")
	f, err := fetcher.New(opts, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to create fetcher", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := f.Start(startCtx); err != nil {
		startCancel()
		logger.Fatal("Failed to start browser driver", zap.Error(err))
	}
	startCancel()

	logger.Info("Browser fetcher initialized",
		zap.Int("startup_contexts", len(opts.StartupContexts)))

	// Create HTTP handler
	serverTimeout := cfg.EffectiveServerTimeout()
	hardTimeout := &service.HardTimeout{Max: serverTimeout}
	httpHandler := service.CreateHTTPHandler(f, metricsCollector, hardTimeout, logger)

	// Configure FastHTTP server
	server := &fasthttp.Server{
		Handler:      httpHandler,
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "FetchService/" + cfg.Server.ID,
	}

	// Start server in background goroutine
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("listen", cfg.Server.Listen))
		if err := server.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait briefly for HTTP server to start listening
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	logger.Info("Fetch Service fully ready",
		zap.String("fs", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen))

	// Switch to configured log level after startup is complete
	dynamicLogger.SwitchToConfiguredLevel()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	// Shutdown separate metrics server if exists
	if metricsServer != nil {
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(metricsShutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		} else {
			logger.Info("Metrics server shutdown complete")
		}
		metricsShutdownCancel()
	}

	// Graceful HTTP server shutdown - complete in-flight requests
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Shutdown browser pool and driver
	if err := f.Close(); err != nil {
		logger.Error("Fetcher shutdown error", zap.Error(err))
	}

	logger.Info("Fetch Service stopped")
}
