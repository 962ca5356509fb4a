package shell

import "errors"

// Creation failures. Each is fatal to one creation attempt only.
var (
	ErrCreationIO      = errors.New("shell creation i/o error")
	ErrCreationTimeout = errors.New("shell creation timed out")
	ErrNotAShell       = errors.New("process is not a shell")
)

// ErrSessionDied is reported when a Job could not run because its session was gone.
var ErrSessionDied = errors.New("shell session died")
