package telemetry

import (
	"io"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

type options struct {
	traceExporter  trace.SpanExporter
	metricExporter metric.Exporter
	writer         io.Writer
	interval       time.Duration
	version        string
	instanceID     string
}

type Option func(*options)

func WithTraceExporter(exporter trace.SpanExporter) Option {
	return func(o *options) {
		o.traceExporter = exporter
	}
}

func WithMetricExporter(exporter metric.Exporter) Option {
	return func(o *options) {
		o.metricExporter = exporter
	}
}

// WithWriter sets where the default stdout exporters write.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

func WithInstanceID(id string) Option {
	return func(o *options) {
		o.instanceID = id
	}
}
