package shell

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

const lineBuffer = 256

// LineReader splits one output stream of the shell into lines.
//
// A pump goroutine reads ahead into a buffered channel so that stray output
// left by an aborted task can be discarded without blocking.
type LineReader struct {
	src   io.Closer
	lines chan string
	eof   chan struct{}
	err   error

	closeOnce sync.Once
	closed    chan struct{}
}

func newLineReader(rc io.ReadCloser) *LineReader {
	r := &LineReader{
		src:    rc,
		lines:  make(chan string, lineBuffer),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
	go r.pump(rc)
	return r
}

func (r *LineReader) pump(src io.Reader) {
	defer close(r.eof)

	br := bufio.NewReader(src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			select {
			case r.lines <- line:
			case <-r.closed:
				r.err = io.EOF
				return
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				err = io.EOF
			}
			r.err = err
			return
		}
	}
}

// ReadLine blocks until the next line is available. It returns io.EOF once
// the stream has ended and every buffered line has been consumed.
func (r *LineReader) ReadLine() (string, error) {
	select {
	case line := <-r.lines:
		return line, nil
	case <-r.eof:
		select {
		case line := <-r.lines:
			return line, nil
		default:
		}
		return "", r.err
	}
}

// Discard drops every line already read ahead and returns how many were dropped.
func (r *LineReader) Discard() int {
	n := 0
	for {
		select {
		case <-r.lines:
			n++
		default:
			return n
		}
	}
}

// Close stops the pump and closes the underlying stream. Pending and future
// ReadLine calls return io.EOF.
func (r *LineReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.src.Close()
	})
	return err
}
