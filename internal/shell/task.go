package shell

import (
	"io"
	"time"
)

// Streams grants a Task exclusive access to a shell's standard streams.
type Streams struct {
	Stdin  io.Writer
	Stdout *LineReader
	Stderr *LineReader

	release    func()
	exitStatus func(time.Duration) (int, bool)
}

// Release tears down the underlying process. Tasks call it to unblock their
// own readers after a write failure; the session is dead afterwards.
func (s Streams) Release() {
	if s.release != nil {
		s.release()
	}
}

// ExitStatus waits up to wait for the shell itself to exit and returns its
// exit status. ok is false while it runs or when it was killed by a signal.
func (s Streams) ExitStatus(wait time.Duration) (code int, ok bool) {
	if s.exitStatus == nil {
		return 0, false
	}
	return s.exitStatus(wait)
}

// Task is one unit of exclusive stream access. Exactly one of Run or
// ShellDied is invoked, at most once.
type Task interface {
	// Run is given the streams while no other task holds them. A returned
	// error is treated as death of the session.
	Run(s Streams) error
	// ShellDied is called instead of Run when the shell is not alive.
	ShellDied()
}

type taskFunc struct {
	run  func(Streams) error
	died func()
}

func (t taskFunc) Run(s Streams) error { return t.run(s) }

func (t taskFunc) ShellDied() {
	if t.died != nil {
		t.died()
	}
}

// NewTask adapts plain functions into a Task. died may be nil.
func NewTask(run func(Streams) error, died func()) Task {
	return taskFunc{run: run, died: died}
}
