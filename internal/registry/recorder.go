package registry

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/shellmux/internal/registry Recorder

import (
	"context"
	"time"
)

// Record summarizes one finished slot job.
type Record struct {
	ID        string        `json:"id"`
	Slot      string        `json:"slot"`
	Input     string        `json:"input"`
	Code      int           `json:"code"`
	Out       []string      `json:"out"`
	Err       []string      `json:"err"`
	Retried   bool          `json:"retried"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Recorder is notified of every finished slot job.
type Recorder interface {
	RecordJob(ctx context.Context, rec Record) error
}
