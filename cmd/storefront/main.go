// Command storefront serves the session exchange, the guarded admin area,
// and the catalog pass-through.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ecocart/internal/catalog"
	"ecocart/internal/config"
	"ecocart/internal/core"
	"ecocart/internal/server"
)

var (
	exitFunc   = os.Exit
	loadConfig = func() (config.Config, error) { return config.Load() }
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stderr)
	stop()
	exitFunc(code)
}

func run(ctx context.Context, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	log := core.NewJSONLogrus(stderr, cfg.LogLevel)
	handler, cleanup, err := buildHandler(cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return 1
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting storefront on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			return 1
		}
		return 0
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
		return 1
	}
	return 0
}

// buildHandler wires logging, metrics, tracing, and the catalog client into
// the storefront handler.
func buildHandler(cfg config.Config, log *logrus.Logger) (http.Handler, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg, "ecocart")
	if err != nil {
		return nil, nil, err
	}
	opts := []core.Option{
		core.WithLogger(core.NewLogrusLogger(log)),
		core.WithMetricsRecorder(metrics),
	}

	cleanup := func() {}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if cfg.EnableTracing {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
		otel.SetTracerProvider(tp)
		opts = append(opts, core.WithTracer(core.NewOTelTracer(tp, "ecocart/storefront")))
		log.Info("Tracing enabled.")
		cleanup = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}
	} else {
		log.Info("Tracing disabled.")
	}

	client := catalog.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.HTTPTimeout}, opts...)
	s, err := server.New(server.Config{
		APIBaseURL:    cfg.APIBaseURL,
		Catalog:       client,
		SecureCookies: cfg.SecureCookies,
		Log:           log,
		Gatherer:      reg,
		Options:       opts,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return s.Handler(), cleanup, nil
}
