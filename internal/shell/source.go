package shell

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// Source is one piece of input written to the shell by a Job.
type Source interface {
	// Consumed reports whether the source can no longer be replayed.
	Consumed() bool

	write(w io.Writer) error
	text() string
}

type commandSource []string

// Commands returns a Source writing each command on its own line.
func Commands(cmds ...string) Source {
	return commandSource(cmds)
}

func (c commandSource) Consumed() bool { return false }

func (c commandSource) write(w io.Writer) error {
	for _, cmd := range c {
		if _, err := io.WriteString(w, cmd+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (c commandSource) text() string { return strings.Join(c, "; ") }

// errSourceRead marks a failure reading caller input, as opposed to writing
// to the shell. The shell stays usable.
var errSourceRead = errors.New("read input source")

type readerSource struct {
	r        io.Reader
	consumed atomic.Bool
}

// Reader returns a Source that copies r to the shell followed by a newline.
// r is read to EOF and closed if it is an io.Closer; it can be used once.
func Reader(r io.Reader) Source {
	return &readerSource{r: r}
}

func (s *readerSource) Consumed() bool { return s.consumed.Load() }

func (s *readerSource) write(w io.Writer) error {
	if s.consumed.Swap(true) {
		return fmt.Errorf("%w: already consumed", errSourceRead)
	}
	if c, ok := s.r.(io.Closer); ok {
		defer c.Close()
	}
	data, err := io.ReadAll(s.r)
	if err != nil {
		return fmt.Errorf("%w: %w", errSourceRead, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (s *readerSource) text() string { return "<stream>" }

// Describe renders sources for logs and journals. Stream contents are not read.
func Describe(srcs ...Source) string {
	parts := make([]string, 0, len(srcs))
	for _, src := range srcs {
		parts = append(parts, src.text())
	}
	return strings.Join(parts, "; ")
}
