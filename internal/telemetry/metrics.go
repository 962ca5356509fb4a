package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/shell"
)

// Job outcomes reported on the shellmux.jobs counter.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeNotExecuted = "not_executed"
)

// Metrics counts finished jobs. It implements registry.Recorder.
type Metrics struct {
	jobs     metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
}

var _ registry.Recorder = (*Metrics)(nil)

// NewMetrics creates the job instruments on meter; nil uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(serviceName)
	}
	jobs, err := meter.Int64Counter("shellmux.jobs",
		metric.WithDescription("Finished shell jobs by slot and outcome."))
	if err != nil {
		return nil, fmt.Errorf("create jobs counter: %w", err)
	}
	retries, err := meter.Int64Counter("shellmux.job.retries",
		metric.WithDescription("Jobs retried after their shell died."))
	if err != nil {
		return nil, fmt.Errorf("create retries counter: %w", err)
	}
	duration, err := meter.Float64Histogram("shellmux.job.duration",
		metric.WithDescription("Job wall time including session creation."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &Metrics{jobs: jobs, retries: retries, duration: duration}, nil
}

func (m *Metrics) RecordJob(ctx context.Context, rec registry.Record) error {
	slot := attribute.String("slot", rec.Slot)
	m.jobs.Add(ctx, 1, metric.WithAttributes(slot, attribute.String("outcome", Outcome(rec.Code))))
	if rec.Retried {
		m.retries.Add(ctx, 1, metric.WithAttributes(slot))
	}
	m.duration.Record(ctx, float64(rec.Duration.Microseconds())/1000, metric.WithAttributes(slot))
	return nil
}

// Outcome classifies an exit code.
func Outcome(code int) string {
	switch {
	case code == 0:
		return OutcomeSuccess
	case code == shell.NotExecuted:
		return OutcomeNotExecuted
	default:
		return OutcomeFailure
	}
}
