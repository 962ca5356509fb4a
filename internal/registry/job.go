package registry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/shellmux/internal/events"
	"github.com/mattjoyce/shellmux/internal/shell"
)

// Job is bound to a slot rather than a session. A run that finds its session
// dead is retried once on a freshly resolved session.
type Job struct {
	reg     *Registry
	slot    string
	id      string
	sources []shell.Source
	out     *[]string
	err     *[]string
	outSet  bool
	errSet  bool
}

// NewJob returns an empty Job for slot.
func (r *Registry) NewJob(slot string) *Job {
	return &Job{reg: r, slot: slot, id: uuid.NewString()}
}

// ID identifies the job in events and the journal.
func (j *Job) ID() string { return j.id }

// Slot returns the slot the job was created for.
func (j *Job) Slot() string { return j.slot }

// Add appends literal commands.
func (j *Job) Add(cmds ...string) *Job {
	if len(cmds) > 0 {
		j.sources = append(j.sources, shell.Commands(cmds...))
	}
	return j
}

// AddReader appends the full contents of r. A job whose reader has been
// consumed is not retried.
func (j *Job) AddReader(r io.Reader) *Job {
	j.sources = append(j.sources, shell.Reader(r))
	return j
}

// To sets the stdout destination; nil discards stdout.
func (j *Job) To(out *[]string) *Job {
	j.out, j.err = out, nil
	j.outSet, j.errSet = true, false
	return j
}

// ToStreams sets both destinations.
func (j *Job) ToStreams(out, err *[]string) *Job {
	j.out, j.err = out, err
	j.outSet, j.errSet = true, true
	return j
}

// Exec runs the job and blocks for its Result. The error is non-nil only when
// no session could be obtained; the Result is then NotExecuted.
func (j *Job) Exec(ctx context.Context) (shell.Result, error) {
	started := time.Now()
	j.reg.publish(events.JobStarted, map[string]any{"job_id": j.id, "slot": j.slot})

	res, served, err := j.execOnce(ctx)
	retried := false
	if err == nil && j.shouldRetry(res) {
		retried = true
		j.noteRetry()
		res, served, err = j.execOnce(ctx)
	}
	j.finish(ctx, started, served, res, err, retried)
	return res, err
}

// Enqueue queues the job and returns a Future. Jobs enqueued before the
// slot's session exists run once it has been created.
func (j *Job) Enqueue() *shell.Future {
	fut, resolve := shell.NewPromise()
	started := time.Now()
	j.reg.publish(events.JobStarted, map[string]any{"job_id": j.id, "slot": j.slot})

	j.enqueueOnce(func(res shell.Result, served string, err error) {
		if err != nil || !j.shouldRetry(res) {
			j.finish(context.Background(), started, served, res, err, false)
			resolve(res, err)
			return
		}
		j.noteRetry()
		j.enqueueOnce(func(res shell.Result, served string, err error) {
			j.finish(context.Background(), started, served, res, err, true)
			resolve(res, err)
		})
	})
	return fut
}

// Submit queues the job and calls cb with the outcome on exec.
func (j *Job) Submit(exec shell.Executor, cb func(shell.Result, error)) {
	j.Enqueue().Then(exec, cb)
}

func (j *Job) execOnce(ctx context.Context) (shell.Result, string, error) {
	s, served, err := j.reg.GetWithFallback(ctx, j.slot)
	if err == nil {
		err = j.checkRoot(s, served)
	}
	if err != nil {
		return shell.NotExecutedResult(), served, err
	}
	mark := j.mark()
	res := j.bind(s).Exec()
	if res.Died() {
		j.rewind(mark)
	}
	return res, served, nil
}

func (j *Job) enqueueOnce(done func(shell.Result, string, error)) {
	j.reg.getAsyncWithFallback(j.slot, func(s *shell.Session, served string, err error) {
		if err == nil {
			err = j.checkRoot(s, served)
		}
		if err != nil {
			done(shell.NotExecutedResult(), served, err)
			return
		}
		mark := j.mark()
		j.bind(s).Enqueue().Then(nil, func(res shell.Result, _ error) {
			if res.Died() {
				j.rewind(mark)
			}
			done(res, served, nil)
		})
	})
}

func (j *Job) checkRoot(s *shell.Session, served string) error {
	if j.reg.requiresRoot(served) && !s.IsRoot() {
		return fmt.Errorf("%w: %s is %s", ErrNotRoot, served, s.Status())
	}
	return nil
}

func (j *Job) bind(s *shell.Session) *shell.Job {
	sj := s.NewJob().AddSource(j.sources...)
	switch {
	case j.errSet:
		sj.ToStreams(j.out, j.err)
	case j.outSet:
		sj.To(j.out)
	}
	return sj
}

// shouldRetry allows one retry after session death unless input that cannot
// be replayed was already sent.
func (j *Job) shouldRetry(res shell.Result) bool {
	if !res.Died() {
		return false
	}
	for _, src := range j.sources {
		if src.Consumed() {
			return false
		}
	}
	return true
}

func (j *Job) noteRetry() {
	j.reg.logger.Info("shell died under job, retrying", "job_id", j.id, "slot", j.slot)
	j.reg.publish(events.JobRetry, map[string]any{"job_id": j.id, "slot": j.slot})
}

type destMark struct {
	out, err int
}

func (j *Job) mark() destMark {
	var m destMark
	if j.out != nil {
		m.out = len(*j.out)
	}
	if j.err != nil {
		m.err = len(*j.err)
	}
	return m
}

// rewind drops partial output a dead attempt left in caller destinations.
func (j *Job) rewind(m destMark) {
	if j.out != nil && len(*j.out) > m.out {
		*j.out = (*j.out)[:m.out]
	}
	if j.err != nil && len(*j.err) > m.err {
		*j.err = (*j.err)[:m.err]
	}
}

func (j *Job) finish(ctx context.Context, started time.Time, served string, res shell.Result, err error, retried bool) {
	ctx = context.WithoutCancel(ctx)
	rec := Record{
		ID:        j.id,
		Slot:      served,
		Input:     shell.Describe(j.sources...),
		Code:      res.Code(),
		Out:       res.Out(),
		Err:       res.Err(),
		Retried:   retried,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
	}
	if err != nil {
		rec.Error = err.Error()
	} else if res.Died() {
		rec.Error = shell.ErrSessionDied.Error()
	}

	j.reg.logger.Debug("job finished", "job_id", j.id, "slot", served, "code", rec.Code, "retried", retried)
	j.reg.publish(events.JobCompleted, map[string]any{
		"job_id":  j.id,
		"slot":    served,
		"code":    rec.Code,
		"retried": retried,
		"error":   rec.Error,
	})

	j.reg.mu.Lock()
	recorders := append([]Recorder(nil), j.reg.recorders...)
	j.reg.mu.Unlock()
	for _, r := range recorders {
		if rerr := r.RecordJob(ctx, rec); rerr != nil {
			j.reg.logger.Warn("record job failed", "job_id", j.id, "error", rerr)
		}
	}
}
