package shell

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// sink is an output destination. Collectors for stdout and stderr that point
// at the same slice share one mutex.
type sink struct {
	dst *[]string
	mu  *sync.Mutex
}

func (s sink) add(line string) {
	if s.dst == nil {
		return
	}
	s.mu.Lock()
	*s.dst = append(*s.dst, line)
	s.mu.Unlock()
}

func (s sink) snapshot() []string {
	if s.dst == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), (*s.dst)...)
}

// collector drains one stream until the line carrying token.
type collector struct {
	stream    string
	r         *LineReader
	token     string
	out       sink
	parseCode bool
	logger    *slog.Logger
}

// run returns the exit code that followed the token on stdout, or
// ExitCodeUnavailable. A read error means the shell went away mid-task.
func (c collector) run() (int, error) {
	for {
		line, err := c.r.ReadLine()
		if err != nil {
			return NotExecuted, err
		}
		idx := strings.LastIndex(line, c.token)
		if idx < 0 {
			c.logger.Debug("shell output", "stream", c.stream, "line", line)
			c.out.add(line)
			continue
		}
		// Output without a trailing newline shares the line with the token.
		if idx > 0 {
			if prefix := strings.TrimRight(line[:idx], "\x00"); prefix != "" {
				c.out.add(prefix)
			}
		}
		if !c.parseCode {
			return 0, nil
		}
		status, err := c.r.ReadLine()
		if err != nil {
			return ExitCodeUnavailable, nil
		}
		code, err := strconv.Atoi(strings.TrimSpace(status))
		if err != nil {
			c.logger.Debug("unparsable exit status", "line", status)
			return ExitCodeUnavailable, nil
		}
		return code, nil
	}
}
