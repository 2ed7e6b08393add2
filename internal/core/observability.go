// Package core holds the service plumbing shared by the storefront stores and
// handlers: structured logging, clocks, metrics and tracing hooks, and the
// functional options used to inject them.
package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used across the module. Args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

// Clock abstracts time for expiry and receipt timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// MetricsRecorder receives the outcome of every instrumented operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around instrumented operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation result.
type TraceSpan interface {
	End(err error)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Options carries the injected collaborators. Zero values are replaced with
// no-op implementations by ResolveOptions.
type Options struct {
	Logger  Logger
	Clock   Clock
	Metrics MetricsRecorder
	Tracer  Tracer
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithClock sets the time source. Nil is ignored.
func WithClock(clock Clock) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithMetricsRecorder sets the metrics recorder. Nil is ignored.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *Options) {
		if recorder != nil {
			o.Metrics = recorder
		}
	}
}

// WithTracer sets the tracer. Nil is ignored.
func WithTracer(tracer Tracer) Option {
	return func(o *Options) {
		if tracer != nil {
			o.Tracer = tracer
		}
	}
}

// ResolveOptions applies opts over no-op defaults.
func ResolveOptions(opts ...Option) Options {
	o := Options{
		Logger:  noopLogger{},
		Clock:   systemClock{},
		Metrics: noopMetricsRecorder{},
		Tracer:  noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Instrument starts a span and a timer for operation. The returned function
// must be called exactly once with the operation result.
func (o Options) Instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := o.Tracer.Start(ctx, operation)
	return ctx, func(err error) {
		span.End(err)
		o.Metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
}
