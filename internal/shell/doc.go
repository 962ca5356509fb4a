// Package shell runs work against one persistent command interpreter.
//
// A Session owns a single interactive subprocess (usually sh or su) and
// serializes Tasks against it. Callers normally build a Job, which frames
// its commands with a per-run sentinel token and collects stdout/stderr
// until that token is echoed back.
//
// Key features:
//   - Bounded handshake on creation (echo probe, uid check, cwd restore for root)
//   - Blocking ExecTask and non-blocking SubmitTask sharing one FIFO queue
//   - Concurrent stdout/stderr collection with exit code extraction
//   - Futures with executor-dispatched callbacks
//   - Task failures folded into Result values; only creation returns errors
//
// Output that itself contains the sentinel token is not supported.
package shell
