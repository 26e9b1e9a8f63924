// Command policymaker boots the policy engine: it loads configuration, opens
// and migrates the configured store, wires audit and metrics plugins, and
// runs until interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/policymaker"
	audithook "github.com/xraph/policymaker/audit_hook"
	"github.com/xraph/policymaker/config"
	"github.com/xraph/policymaker/observability"
	"github.com/xraph/policymaker/store/driver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "policymaker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []policymaker.Option{
		policymaker.WithLogger(logger),
		policymaker.WithDefaultCurrency(cfg.Currency),
		policymaker.WithPluginTimeout(cfg.PluginTimeout),
		policymaker.WithPlugin(observability.NewMetricsExtension(
			observability.NewPrometheusFactory(cfg.MetricsNamespace, prometheus.DefaultRegisterer),
		)),
	}

	if cfg.OTLPEndpoint != "" {
		tp, err := observability.InitTracer(ctx, "policymaker", cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown tracer", "error", err)
			}
		}()
		opts = append(opts, policymaker.WithTracerProvider(tp))
	}

	if cfg.AuditLog != "" {
		w, closeAudit, err := openAuditLog(cfg.AuditLog)
		if err != nil {
			return err
		}
		defer closeAudit()
		opts = append(opts, policymaker.WithPlugin(audithook.New(
			audithook.NewWriterRecorder(w),
			audithook.WithLogger(logger),
		)))
	}

	s, err := driver.Open(ctx, driver.Options{
		Driver:   cfg.StoreDriver,
		DSN:      cfg.StoreDSN,
		Database: cfg.MongoDatabase,
		Prefix:   cfg.RedisPrefix,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	eng, err := policymaker.New(s, cfg.Admin, opts...)
	if err != nil {
		_ = s.Close()
		return err
	}
	if err := eng.Start(ctx); err != nil {
		_ = eng.Stop()
		return fmt.Errorf("start engine: %w", err)
	}

	count, err := eng.PolicyCount(ctx)
	if err != nil {
		_ = eng.Stop()
		return err
	}
	logger.Info("policymaker ready",
		"store", cfg.StoreDriver,
		"policies", count,
	)

	<-ctx.Done()
	logger.Info("policymaker shutting down")
	return eng.Stop()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openAuditLog returns stdout for "-" and an append-only file otherwise.
func openAuditLog(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
