// Package telemetry wires OpenTelemetry tracing and job metrics.
package telemetry

import (
	"context"
	"errors"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "shellmux"

// Setup installs global tracer and meter providers. The returned shutdown
// flushes and stops both.
func Setup(ctx context.Context, opts ...Option) (shutdown func(context.Context) error, err error) {
	options := &options{
		writer:   os.Stderr,
		interval: time.Minute,
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.defaultExporters(); err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(options.version),
		semconv.ServiceInstanceID(options.instanceID),
	)

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider := trace.NewTracerProvider(
		trace.WithBatcher(options.traceExporter, trace.WithBatchTimeout(time.Second)),
		trace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(options.metricExporter, metric.WithInterval(options.interval))),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	return shutdown, nil
}

func (o *options) defaultExporters() error {
	if o.traceExporter == nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
		if err != nil {
			return err
		}
		o.traceExporter = exp
	}
	if o.metricExporter == nil {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return err
		}
		o.metricExporter = exp
	}
	return nil
}
