package shell

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// shellExitWait bounds how long a job waits for the shell's exit status once
// its output streams have closed.
const shellExitWait = time.Second

// Job builds one framed execution against a Session.
type Job struct {
	session *Session
	sources []Source
	out     *[]string
	err     *[]string
	outSet  bool
	errSet  bool
}

// NewJob returns an empty Job bound to s.
func (s *Session) NewJob() *Job {
	return &Job{session: s}
}

// Add appends literal commands.
func (j *Job) Add(cmds ...string) *Job {
	if len(cmds) > 0 {
		j.sources = append(j.sources, Commands(cmds...))
	}
	return j
}

// AddReader appends the full contents of r. r is closed after use.
func (j *Job) AddReader(r io.Reader) *Job {
	j.sources = append(j.sources, Reader(r))
	return j
}

// AddSource appends prepared sources.
func (j *Job) AddSource(srcs ...Source) *Job {
	j.sources = append(j.sources, srcs...)
	return j
}

// To sets the stdout destination; nil discards stdout. Stderr follows it
// when the session redirects stderr.
func (j *Job) To(out *[]string) *Job {
	j.out = out
	j.outSet = true
	j.err = nil
	j.errSet = false
	return j
}

// ToStreams sets both destinations. Passing the same slice for both merges
// the streams.
func (j *Job) ToStreams(out, err *[]string) *Job {
	j.out = out
	j.err = err
	j.outSet = true
	j.errSet = true
	return j
}

// Exec runs the job on the calling goroutine and returns its Result.
func (j *Job) Exec() Result {
	res := NotExecutedResult()
	j.session.ExecTask(j.task(func(r Result) { res = r }))
	return res
}

// Enqueue queues the job behind earlier work and returns a Future.
func (j *Job) Enqueue() *Future {
	fut, resolve := NewPromise()
	j.session.SubmitTask(j.task(func(r Result) { resolve(r, nil) }))
	return fut
}

// Submit queues the job and calls cb with the Result on exec.
func (j *Job) Submit(exec Executor, cb func(Result)) {
	if cb == nil {
		j.Enqueue()
		return
	}
	j.Enqueue().Then(exec, func(r Result, _ error) { cb(r) })
}

func (j *Job) task(done func(Result)) *jobTask {
	t := &jobTask{
		sources: j.sources,
		token:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		done:    done,
		logger:  j.session.logger,
	}

	out := j.out
	if !j.outSet {
		out = new([]string)
	}
	t.out = sink{dst: out, mu: new(sync.Mutex)}

	switch {
	case j.errSet && j.err != nil && j.err == j.out:
		t.err = t.out
	case j.errSet:
		t.err = sink{dst: j.err, mu: new(sync.Mutex)}
	case j.session.redirectStderr:
		t.err = t.out
	}
	return t
}

// jobTask implements the sentinel framing for one Job execution.
type jobTask struct {
	sources []Source
	token   string
	out     sink
	err     sink
	done    func(Result)
	logger  *slog.Logger
}

func (t *jobTask) ShellDied() {
	t.done(diedResult())
}

func (t *jobTask) Run(s Streams) error {
	if n := s.Stdout.Discard() + s.Stderr.Discard(); n > 0 {
		t.logger.Debug("discarded stray output", "lines", n)
	}

	code := NotExecuted
	var g errgroup.Group
	g.Go(func() error {
		c, err := collector{stream: "stdout", r: s.Stdout, token: t.token, out: t.out, parseCode: true, logger: t.logger}.run()
		code = c
		return err
	})
	g.Go(func() error {
		_, err := collector{stream: "stderr", r: s.Stderr, token: t.token, out: t.err, logger: t.logger}.run()
		return err
	})

	if err := t.write(s.Stdin); err != nil {
		// The collectors will never see the token; unblock them.
		exit, exited := s.ExitStatus(shellExitWait)
		s.Release()
		_ = g.Wait()
		t.finishDead(exit, exited)
		return fmt.Errorf("write job input: %w", err)
	}
	if err := g.Wait(); err != nil {
		exit, exited := s.ExitStatus(shellExitWait)
		t.finishDead(exit, exited)
		return fmt.Errorf("read job output: %w", err)
	}

	t.done(NewResult(t.out.snapshot(), t.err.snapshot(), code))
	return nil
}

// finishDead reports a job during which the shell went away. A shell that
// exited on its own (an explicit exit command) yields that status; anything
// else means the session died under the job.
func (t *jobTask) finishDead(code int, exited bool) {
	if !exited {
		t.done(diedResult())
		return
	}
	t.done(NewResult(t.out.snapshot(), t.err.snapshot(), code))
}

func (t *jobTask) write(w io.Writer) error {
	for _, src := range t.sources {
		t.logger.Debug("shell input", "input", src.text())
		if err := src.write(w); err != nil {
			if errors.Is(err, errSourceRead) {
				t.logger.Warn("skipping unreadable input", "error", err)
				continue
			}
			return err
		}
	}
	end := fmt.Sprintf("__RET=$?;echo %[1]s;echo %[1]s >&2;echo $__RET;unset __RET\n", t.token)
	_, err := io.WriteString(w, end)
	return err
}
