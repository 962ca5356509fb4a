package shell

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	handshakeProbe = "SHELL_TEST"

	// terminationGracePeriod is how long a released shell gets between
	// SIGTERM and SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// Process owns one interpreter subprocess and its three standard streams.
// It is never shared between sessions.
type Process struct {
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *LineReader
	stderr  *LineReader
	status  Status
	created time.Time
	logger  *slog.Logger

	exited      chan struct{}
	released    atomic.Bool
	releaseOnce sync.Once
}

// Spawn starts argv and verifies within timeout that it behaves like a shell.
// When the shell turns out to be root its working directory is reset to dir.
func Spawn(ctx context.Context, argv []string, timeout time.Duration, dir string, logger *slog.Logger) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrCreationIO)
	}
	if logger == nil {
		logger = slog.Default()
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrCreationIO, err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrCreationIO, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrCreationIO, err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		closeAll(inR, inW, outR, outW, errR, errW)
		return nil, fmt.Errorf("%w: start %s: %w", ErrCreationIO, argv[0], err)
	}
	// The child holds its own copies now.
	closeAll(inR, outW, errW)

	p := &Process{
		cmd:     cmd,
		stdin:   inW,
		stdout:  newLineReader(outR),
		stderr:  newLineReader(errR),
		status:  StatusUnknown,
		created: time.Now(),
		logger:  logger.With("pid", cmd.Process.Pid),
		exited:  make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	mountMaster := slices.Contains(argv, "--mount-master")
	done := make(chan error, 1)
	go func() {
		done <- p.handshake(dir, mountMaster)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.Release()
			return nil, err
		}
	case <-timer.C:
		p.Release()
		return nil, fmt.Errorf("%w after %s", ErrCreationTimeout, timeout)
	case <-ctx.Done():
		p.Release()
		return nil, fmt.Errorf("%w: %w", ErrCreationIO, ctx.Err())
	}

	p.logger.Debug("shell ready", "command", strings.Join(argv, " "), "status", p.status.String())
	return p, nil
}

func (p *Process) handshake(dir string, mountMaster bool) error {
	if !p.IsAlive() {
		return fmt.Errorf("%w: process exited before handshake", ErrCreationIO)
	}
	p.stdout.Discard()
	p.stderr.Discard()

	line, err := p.query("echo " + handshakeProbe)
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != handshakeProbe {
		return fmt.Errorf("%w: unexpected probe reply %q", ErrNotAShell, line)
	}

	line, err = p.query("id")
	if err != nil {
		return err
	}
	status := StatusNonRoot
	if strings.Contains(line, "uid=0") {
		status = StatusRoot
		if mountMaster {
			status = StatusRootMountMaster
		}
		// su does not inherit our working directory
		if dir != "" {
			if err := p.writeLine("cd " + EscapedString(dir)); err != nil {
				return fmt.Errorf("%w: restore cwd: %w", ErrCreationIO, err)
			}
		}
	}
	p.status = status
	return nil
}

func (p *Process) query(cmd string) (string, error) {
	if err := p.writeLine(cmd); err != nil {
		return "", fmt.Errorf("%w: write %q: %w", ErrCreationIO, cmd, err)
	}
	line, err := p.stdout.ReadLine()
	if err != nil {
		return "", fmt.Errorf("%w: read reply to %q: %w", ErrCreationIO, cmd, err)
	}
	return line, nil
}

func (p *Process) writeLine(s string) error {
	_, err := io.WriteString(p.stdin, s+"\n")
	return err
}

// IsAlive reports whether the subprocess is still running. It never blocks.
// Once the process is seen to have exited its resources are released and
// IsAlive stays false.
func (p *Process) IsAlive() bool {
	if p.released.Load() {
		return false
	}
	select {
	case <-p.exited:
		p.Release()
		return false
	default:
		return true
	}
}

// Status returns the privilege classification from the handshake.
func (p *Process) Status() Status {
	if !p.IsAlive() {
		return StatusUnknown
	}
	return p.status
}

// Created returns when the subprocess was spawned.
func (p *Process) Created() time.Time { return p.created }

// Pid returns the subprocess pid.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Release closes all streams and terminates the subprocess. Safe to call
// more than once.
func (p *Process) Release() {
	p.releaseOnce.Do(func() {
		p.released.Store(true)
		_ = p.stdin.Close()
		_ = p.stdout.Close()
		_ = p.stderr.Close()

		select {
		case <-p.exited:
			return
		default:
		}

		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		go func() {
			select {
			case <-p.exited:
			case <-time.After(terminationGracePeriod):
				p.logger.Warn("shell ignored SIGTERM, killing")
				_ = p.cmd.Process.Kill()
			}
		}()
	})
}

// Exited is closed once the subprocess has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// exitStatus waits up to wait for the subprocess to exit and returns its
// status. ok is false if it is still running or was killed by a signal.
func (p *Process) exitStatus(wait time.Duration) (code int, ok bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		return 0, false
	}
	code = p.cmd.ProcessState.ExitCode()
	return code, code >= 0
}

func (p *Process) streams() Streams {
	return Streams{
		Stdin:      p.stdin,
		Stdout:     p.stdout,
		Stderr:     p.stderr,
		release:    p.Release,
		exitStatus: p.exitStatus,
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
