package shell

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds the creation handshake when Options.Timeout is zero.
const DefaultTimeout = 20 * time.Second

// Options configures a new Session.
type Options struct {
	// Command is the interpreter argv, e.g. ["su"] or ["sh"].
	Command []string
	Timeout time.Duration
	// RedirectStderr sends stderr into the stdout destination of jobs that
	// did not pick a stderr destination.
	RedirectStderr bool
	// Dir is restored in root shells. Defaults to the current directory.
	Dir    string
	Logger *slog.Logger
}

type entryKind int

const (
	entryTask entryKind = iota
	entryWake
)

// entry is a queue slot: either real work or a wake signal for a blocked
// ExecTask caller.
type entry struct {
	kind entryKind
	task Task
	wake *wakeSignal
}

type wakeSignal struct {
	ready bool
}

// Session serializes Tasks against one shell process.
type Session struct {
	proc           *Process
	redirectStderr bool
	logger         *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []entry
	running bool
	idle    chan struct{}
	closing bool
}

// New spawns opts.Command and returns a Session once the handshake passes.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dir == "" {
		opts.Dir, _ = os.Getwd()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "shell")

	proc, err := Spawn(ctx, opts.Command, opts.Timeout, opts.Dir, logger)
	if err != nil {
		logger.Warn("shell creation failed", "command", strings.Join(opts.Command, " "), "error", err)
		return nil, err
	}
	return newSession(proc, opts.RedirectStderr, logger), nil
}

func newSession(proc *Process, redirect bool, logger *slog.Logger) *Session {
	s := &Session{
		proc:           proc,
		redirectStderr: redirect,
		logger:         logger.With("pid", proc.Pid()),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SubmitTask queues t behind all earlier work and returns immediately.
func (s *Session) SubmitTask(t Task) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		t.ShellDied()
		return
	}
	s.queue = append(s.queue, entry{kind: entryTask, task: t})
	if !s.running {
		s.startLocked()
		go s.drain()
	}
	s.mu.Unlock()
}

// ExecTask runs t on the calling goroutine once every task queued before it
// has finished, then keeps draining whatever was queued behind it.
func (s *Session) ExecTask(t Task) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		t.ShellDied()
		return
	}
	if s.running {
		w := &wakeSignal{}
		s.queue = append(s.queue, entry{kind: entryWake, wake: w})
		for !w.ready {
			s.cond.Wait()
		}
	} else {
		s.startLocked()
	}
	s.mu.Unlock()

	s.run(t)
	s.drain()
}

func (s *Session) startLocked() {
	s.running = true
	s.idle = make(chan struct{})
}

// drain executes queued tasks until the queue is empty or a wake signal hands
// control to a blocked ExecTask caller.
func (s *Session) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			close(s.idle)
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue[0] = entry{}
		s.queue = s.queue[1:]

		switch e.kind {
		case entryWake:
			e.wake.ready = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		case entryTask:
			s.mu.Unlock()
			s.run(e.task)
		}
	}
}

func (s *Session) run(t Task) {
	if !s.proc.IsAlive() {
		t.ShellDied()
		return
	}
	if err := t.Run(s.proc.streams()); err != nil {
		s.logger.Warn("task i/o failed, releasing shell", "error", err)
		s.proc.Release()
	}
}

// IsAlive reports whether the shell process is still running.
func (s *Session) IsAlive() bool { return s.proc.IsAlive() }

// Status returns the privilege level, or StatusUnknown once dead.
func (s *Session) Status() Status { return s.proc.Status() }

// IsRoot reports whether the live shell runs as uid 0.
func (s *Session) IsRoot() bool { return s.Status().IsRoot() }

// Created returns the process start time.
func (s *Session) Created() time.Time { return s.proc.Created() }

// Pid returns the shell process id.
func (s *Session) Pid() int { return s.proc.Pid() }

// QueueLen returns the number of queued entries not yet started.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close releases the shell immediately. Queued tasks observe a dead shell.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.logger.Debug("closing shell")
	s.proc.Release()
	return nil
}

// WaitAndClose stops accepting work and closes the shell once queued work is
// done. It returns false if that did not happen within timeout; in-flight
// work is not interrupted.
func (s *Session) WaitAndClose(timeout time.Duration) bool {
	s.mu.Lock()
	s.closing = true
	running, idle := s.running, s.idle
	s.mu.Unlock()

	if running {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-idle:
		case <-timer.C:
			return false
		}
	}
	s.proc.Release()
	return true
}
