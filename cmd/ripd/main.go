// Command ripd runs one routing-daemon process: it loads a
// configuration record, binds the configured input ports, and runs
// the distance-vector exchange until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/ellacalder/cosc364-rip-assignment/config"
	"github.com/ellacalder/cosc364-rip-assignment/daemon"
	"github.com/ellacalder/cosc364-rip-assignment/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to the router's configuration record (required)")
		metricsAddr = pflag.String("metrics-addr", "127.0.0.1:0", "address to serve Prometheus metrics on; empty disables it")
		logLevel    = pflag.String("log-level", "info", "zerolog level: debug, info, warn, error")
	)
	pflag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ripd: invalid -log-level %q: %v\n", *logLevel, err)
		return 2
	}

	runID := uuid.New().String()
	logger := zerolog.New(zerolog.NewConsoleWriter()).
		Level(level).
		With().
		Timestamp().
		Str("run_id", runID).
		Logger()

	if *configPath == "" {
		logger.Error().Msg("-config is required")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	logger.Info().Uint32("router_id", cfg.RouterID).Ints("inputs", toInts(cfg.Inputs)).Int("neighbors", len(cfg.Outputs)).Msg("configuration loaded")

	reg := prometheus.NewRegistry()
	mc := metrics.New(reg, cfg.RouterID)

	if *metricsAddr != "" {
		startMetricsServer(*metricsAddr, reg, logger)
	}

	d, err := daemon.New(cfg, logger, mc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start daemon")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		cancel()
	}()

	logger.Info().Msg("router running")
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		return 1
	}
	logger.Info().Msg("router stopped")
	return 0
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server exited")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
}

func toInts(ports []uint16) []int {
	out := make([]int, len(ports))
	for i, p := range ports {
		out[i] = int(p)
	}
	return out
}
