// Package main is the entry point for the veilgate binary. It runs the
// claims-aware response filtering and request monitoring layer in front
// of a configurable upstream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/veilgate/veilgate/internal/admission"
	"github.com/veilgate/veilgate/pkg/config"
	"github.com/veilgate/veilgate/pkg/gateway"
	"github.com/veilgate/veilgate/pkg/logging"
	"github.com/veilgate/veilgate/pkg/policy"
	"github.com/veilgate/veilgate/pkg/ratewatch"
	"github.com/veilgate/veilgate/pkg/telemetry"
)

const defaultConfigPath = "veilgate.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "veilgate",
		Short: "Claims-aware response redaction and request monitoring gateway",
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE:  runServe,
	}

	serveCmd.Flags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML or JSON)")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("pretty", false, "Enable pretty console logging")

	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listenFlag, _ := cmd.Flags().GetString("listen")
	logLevel, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("pretty")

	bootLogger := logging.NewLogger(logging.Config{Level: "info", Pretty: pretty})

	provider, err := config.NewFileProvider(configPath, bootLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			bootLogger.Error("failed to close config provider", "error", err)
		}
	}()

	cfg := provider.Config()
	if listenFlag != "" {
		cfg.Server.Listen = listenFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Pretty: pretty || cfg.Logging.Pretty})
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := gateway.NewMetrics(registry)

	snapshot := provider.CurrentSnapshot()

	tracker := ratewatch.NewTracker(ratewatch.Options{
		IdleEviction: snapshot.Thresholds.IdleEviction,
		Logger:       logger,
	})
	defer tracker.Stop()

	monitor := gateway.NewMonitor(gateway.MonitorConfig{
		Tracker:            tracker,
		Thresholds:         snapshot.Thresholds,
		IntrospectionPaths: snapshot.IntrospectionPaths,
		Logger:             logger,
		Metrics:            metrics,
	})
	filter := gateway.NewResponseFilter(gateway.FilterConfig{
		Policies:      policy.FromSnapshot(snapshot),
		ExcludedPaths: snapshot.ExcludedPaths,
		Logger:        logger,
		Metrics:       metrics,
	})
	limiter := admission.NewLimiter(snapshot.Admission)

	go applyReloads(provider, filter, monitor, limiter, logger)

	upstream, err := upstreamHandler(cfg.Server.Upstream, logger)
	if err != nil {
		return err
	}

	// Monitoring runs before business logic; filtering wraps it so the
	// outgoing body is rewritten after the handler completes but before
	// any byte reaches the transport.
	chain := filter.Wrap(upstream)
	chain = limiter.Wrap(chain)
	chain = monitor.Wrap(chain)
	chain = gateway.HeaderIdentity(chain)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", otelhttp.NewHandler(chain, "veilgate"))

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("veilgate listening", "addr", cfg.Server.Listen, "upstream", cfg.Server.Upstream)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}
	return nil
}

// applyReloads propagates file-driven snapshot updates into the running
// middlewares. Each component swaps its state atomically; in-flight
// requests finish on the snapshot they started with.
func applyReloads(provider *config.FileProvider, filter *gateway.ResponseFilter, monitor *gateway.Monitor, limiter *admission.Limiter, logger *slog.Logger) {
	updates := provider.Subscribe()
	<-updates // the subscription replays the snapshot already applied

	for snap := range updates {
		store := policy.FromSnapshot(snap)
		filter.UpdatePolicies(store)
		monitor.UpdateThresholds(snap.Thresholds)
		limiter.Configure(snap.Admission)
		logger.Info("applied configuration update",
			"restricted_fields", store.Len(),
			"suspicious_threshold", snap.Thresholds.Suspicious,
			"high_frequency_threshold", snap.Thresholds.HighFrequency,
		)
	}
}

func upstreamHandler(upstream string, logger *slog.Logger) (http.Handler, error) {
	if upstream == "" {
		logger.Info("no upstream configured, serving built-in sample API")
		return sampleHandler(), nil
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", upstream, err)
	}
	return httputil.NewSingleHostReverseProxy(target), nil
}
