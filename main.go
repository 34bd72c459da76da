package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dirindex/internal/filesystem"
	"dirindex/internal/handlers"
	"dirindex/internal/logging"
	"dirindex/internal/memory"
	"dirindex/internal/metrics"
	"dirindex/internal/middleware"
	"dirindex/internal/scanner"
	"dirindex/internal/search"
	"dirindex/internal/startup"
	"dirindex/internal/store"
	"dirindex/internal/watchmgr"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything allocates in earnest.
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetNetworkPrefixes(config.NetworkPrefixes)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	// Initialize the index store
	storeStart := time.Now()
	ctx := context.Background()
	st, err := store.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize index store: %v", err)
	}
	defer st.Close()
	startup.LogStoreInit(time.Since(storeStart))

	// Initialize the scanner
	scanConfig := scanner.Config{
		BatchSize: config.ScanBatchSize,
		Walker:    scanner.DefaultWalkerConfig(),
		Monitor:   monitor,
	}
	if config.ScanWorkers > 0 {
		scanConfig.Walker.NumWorkers = config.ScanWorkers
	}
	if len(config.IgnorePatterns) > 0 {
		scanConfig.Walker.Ignore = config.IgnorePatterns
	}
	sc := scanner.New(st, scanConfig)

	// Start the watch manager: attaches existing roots and queues
	// their reconciling startup scans in the background.
	manager := watchmgr.New(st, sc, watchmgr.Config{
		DefaultPollInterval: config.DefaultPollInterval,
		Debounce:            config.Debounce,
	})
	if err := manager.Start(ctx); err != nil {
		startup.LogFatal("Failed to start watch manager: %v", err)
	}
	roots, _ := st.ListEnabledRoots(ctx)
	startup.LogWatchManagerInit(len(roots))

	// Metrics
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		collector := metrics.NewCollector(storeStats{st}, 30*time.Second)
		collector.Start()
		defer collector.Stop()
		go startMetricsServer(config.MetricsPort)
	}

	// HTTP API
	svc := search.NewService(st)
	h := handlers.New(st, svc, manager, config)

	router := mux.NewRouter()
	h.Routes(router)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	var handler http.Handler = middleware.Logger(loggingConfig)(router)

	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go handleShutdown(srv, manager)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

// startMetricsServer serves Prometheus metrics on a separate port so
// scrapes never compete with API traffic.
func startMetricsServer(port string) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Error("Metrics server error: %v", err)
	}
}

// storeStats adapts the store to the metrics collector.
type storeStats struct {
	st *store.Store
}

func (s storeStats) GetStats() metrics.Stats {
	stats, err := s.st.CalculateStats(context.Background())
	if err != nil {
		return metrics.Stats{}
	}
	return metrics.Stats{
		TotalFiles:      stats.TotalFiles,
		TotalDirs:       stats.TotalDirs,
		RootsByStatus:   stats.RootsByStatus,
		OpenConnections: s.st.OpenConnections(),
	}
}

func handleShutdown(srv *http.Server, manager *watchmgr.Manager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping watch manager")
	manager.Stop()
	startup.LogShutdownStepComplete("Watch manager stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
