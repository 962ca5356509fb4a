package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattjoyce/shellmux/internal/journal"
	"github.com/mattjoyce/shellmux/internal/registry"
	"github.com/mattjoyce/shellmux/internal/shell"
)

const tracerName = "github.com/mattjoyce/shellmux/internal/api"

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	slots := s.slots.Slots()
	alive := 0
	for _, sl := range slots {
		if sl.Alive {
			alive++
		}
	}

	s.mu.Lock()
	running := len(s.running)
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Slots:         len(slots),
		SlotsAlive:    alive,
		JobsRunning:   running,
		StartedAt:     s.startedAt.UTC(),
	})
}

// handleListSlots handles GET /slots.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SlotsResponse{Slots: s.slots.Slots()})
}

// handleExec handles POST /slots/{slot}/exec. The response carries the job's
// Result once it has run.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	req, ok := s.decodeExec(w, r, slot)
	if !ok {
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "slot.exec",
		trace.WithAttributes(attribute.String("slot", slot)))
	defer span.End()

	var out, errLines []string
	job := s.buildJob(slot, req).ToStreams(&out, &errLines)
	span.SetAttributes(attribute.String("job.id", job.ID()))

	res, err := job.Exec(ctx)
	span.SetAttributes(attribute.Int("job.code", res.Code()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.writeJobError(w, slot, err)
		return
	}
	if res.Died() {
		span.SetStatus(codes.Error, shell.ErrSessionDied.Error())
	}

	respondJSON(w, http.StatusOK, ExecResponse{
		JobID: job.ID(),
		Slot:  slot,
		Code:  res.Code(),
		Out:   res.Out(),
		Err:   res.Err(),
		Died:  res.Died(),
	})
}

// handleSubmit handles POST /slots/{slot}/jobs. The job is queued on the slot
// and its outcome lands in the journal.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	req, ok := s.decodeExec(w, r, slot)
	if !ok {
		return
	}

	job := s.buildJob(slot, req).ToStreams(new([]string), new([]string))
	id := job.ID()

	s.mu.Lock()
	s.running[id] = slot
	s.mu.Unlock()

	job.Submit(shell.Go, func(res shell.Result, err error) {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("queued job not executed", "job_id", id, "slot", slot, "error", err)
		}
	})

	s.logger.Info("job queued via API", "job_id", id, "slot", slot)
	respondJSON(w, http.StatusAccepted, JobAcceptedResponse{
		JobID:  id,
		Slot:   slot,
		Status: jobStatusRunning,
	})
}

// handleListJobs handles GET /jobs?slot=&limit=.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "job journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	jobs, err := s.store.Recent(r.Context(), r.URL.Query().Get("slot"), limit)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []registry.Record{}
	}
	respondJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
}

// handleGetJob handles GET /jobs/{jobID}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	s.mu.Lock()
	_, running := s.running[id]
	s.mu.Unlock()
	if running {
		respondJSON(w, http.StatusOK, JobResponse{Status: jobStatusRunning, JobID: id})
		return
	}

	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "job journal disabled")
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	respondJSON(w, http.StatusOK, JobResponse{Status: jobStatusCompleted, JobID: id, Record: &rec})
}

func (s *Server) decodeExec(w http.ResponseWriter, r *http.Request, slot string) (ExecRequest, bool) {
	var req ExecRequest
	if !s.slotExists(slot) {
		s.writeError(w, http.StatusNotFound, "slot not found")
		return req, false
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if len(req.Commands) == 0 && req.Stdin == nil {
		s.writeError(w, http.StatusBadRequest, "commands or stdin required")
		return req, false
	}
	return req, true
}

func (s *Server) buildJob(slot string, req ExecRequest) *registry.Job {
	job := s.slots.NewJob(slot).Add(req.Commands...)
	if req.Stdin != nil {
		job.AddReader(strings.NewReader(*req.Stdin))
	}
	return job
}

func (s *Server) slotExists(name string) bool {
	for _, sl := range s.slots.Slots() {
		if sl.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) writeJobError(w http.ResponseWriter, slot string, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownSlot):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNotRoot):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "gave up waiting for shell")
	default:
		s.logger.Warn("slot unavailable", "slot", slot, "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
