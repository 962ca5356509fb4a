package api

import (
	"time"

	"github.com/mattjoyce/shellmux/internal/registry"
)

// ExecRequest is the JSON body for POST /slots/{slot}/exec and
// POST /slots/{slot}/jobs. Stdin is written after the commands.
type ExecRequest struct {
	Commands []string `json:"commands"`
	Stdin    *string  `json:"stdin,omitempty"`
}

// ExecResponse is returned by a synchronous exec.
type ExecResponse struct {
	JobID string   `json:"job_id"`
	Slot  string   `json:"slot"`
	Code  int      `json:"code"`
	Out   []string `json:"out"`
	Err   []string `json:"err"`
	Died  bool     `json:"died"`
}

// JobAcceptedResponse is returned when a job is queued.
type JobAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Slot   string `json:"slot"`
	Status string `json:"status"`
}

// JobResponse is returned by GET /jobs/{id}.
type JobResponse struct {
	Status string           `json:"status"`
	JobID  string           `json:"job_id"`
	Record *registry.Record `json:"record,omitempty"`
}

// JobsResponse is returned by GET /jobs.
type JobsResponse struct {
	Jobs []registry.Record `json:"jobs"`
}

// SlotsResponse is returned by GET /slots.
type SlotsResponse struct {
	Slots []registry.SlotInfo `json:"slots"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Slots         int       `json:"slots"`
	SlotsAlive    int       `json:"slots_alive"`
	JobsRunning   int       `json:"jobs_running"`
	StartedAt     time.Time `json:"started_at"`
}

const (
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
)
