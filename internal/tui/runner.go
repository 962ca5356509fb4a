package tui

import (
	"context"

	"github.com/mattjoyce/shellmux/internal/registry"
)

// Output is one finished console command.
type Output struct {
	JobID string   `json:"job_id"`
	Code  int      `json:"code"`
	Out   []string `json:"out"`
	Err   []string `json:"err"`
	Died  bool     `json:"died"`
}

// Runner executes console commands on a slot.
type Runner interface {
	Run(ctx context.Context, slot, command string) (Output, error)
	Slots(ctx context.Context) ([]registry.SlotInfo, error)
}

// LocalRunner runs commands on an in-process registry.
type LocalRunner struct {
	Registry *registry.Registry
}

func (l LocalRunner) Run(ctx context.Context, slot, command string) (Output, error) {
	var out, errLines []string
	job := l.Registry.NewJob(slot).Add(command).ToStreams(&out, &errLines)
	res, err := job.Exec(ctx)
	if err != nil {
		return Output{JobID: job.ID(), Code: res.Code()}, err
	}
	return Output{JobID: job.ID(), Code: res.Code(), Out: res.Out(), Err: res.Err(), Died: res.Died()}, nil
}

func (l LocalRunner) Slots(context.Context) ([]registry.SlotInfo, error) {
	return l.Registry.Slots(), nil
}
