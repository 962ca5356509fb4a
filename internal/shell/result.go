package shell

import "slices"

const (
	// NotExecuted is the exit code of a Job that never ran.
	NotExecuted = -1
	// ExitCodeUnavailable means the job ran but its exit status could not be read.
	ExitCodeUnavailable = -2
)

// Result is the captured output and exit status of one Job execution.
// Always build one through the constructors; the zero value reads as success.
type Result struct {
	out  []string
	err  []string
	code int
	died bool
}

// NewResult builds a completed Result.
func NewResult(out, err []string, code int) Result {
	return Result{out: slices.Clone(out), err: slices.Clone(err), code: code}
}

// NotExecutedResult is returned for work that never reached a shell.
func NotExecutedResult() Result {
	return Result{code: NotExecuted}
}

func diedResult() Result {
	return Result{code: NotExecuted, died: true}
}

// Out returns the captured stdout lines. Never nil.
func (r Result) Out() []string {
	if r.out == nil {
		return []string{}
	}
	return slices.Clone(r.out)
}

// Err returns the captured stderr lines. Never nil.
func (r Result) Err() []string {
	if r.err == nil {
		return []string{}
	}
	return slices.Clone(r.err)
}

// Code returns the exit status, NotExecuted or ExitCodeUnavailable.
func (r Result) Code() int { return r.code }

// IsSuccess reports exit status 0.
func (r Result) IsSuccess() bool { return r.code == 0 }

// Executed reports whether the job reached a live shell.
func (r Result) Executed() bool { return r.code != NotExecuted }

// Died reports that the session was found dead, or died, while the job was
// scheduled on it.
func (r Result) Died() bool { return r.died }
