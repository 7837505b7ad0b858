package executor

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/slok/stepbridge/internal/model"
)

const stderrTailSize = 512

// Capture holds the output sinks of an execution. Streams that have a writer on the
// command spec are streamed to it, the rest are buffered.
type Capture struct {
	stdout    io.Writer
	stderr    io.Writer
	stdoutBuf *syncBuffer
	stderrBuf *syncBuffer
	tail      *tailWriter
	start     time.Time
}

// NewCapture returns the output capture of a command spec.
func NewCapture(spec model.CommandSpec) *Capture {
	c := &Capture{
		tail:  &tailWriter{max: stderrTailSize},
		start: time.Now(),
	}

	c.stdout = spec.Stdout
	if c.stdout == nil {
		c.stdoutBuf = &syncBuffer{}
		c.stdout = c.stdoutBuf
	}

	stderr := spec.Stderr
	if stderr == nil {
		c.stderrBuf = &syncBuffer{}
		stderr = c.stderrBuf
	}
	c.stderr = io.MultiWriter(stderr, c.tail)

	return c
}

// Stdout returns the writer for the command standard output.
func (c *Capture) Stdout() io.Writer { return c.stdout }

// Stderr returns the writer for the command error output.
func (c *Capture) Stderr() io.Writer { return c.stderr }

// StderrTail returns the last bytes written to the error output.
func (c *Capture) StderrTail() []byte { return c.tail.Bytes() }

// Result returns the execution result with the captured output so far.
func (c *Capture) Result(exitCode int, completed bool) *model.ExecResult {
	res := &model.ExecResult{
		ExitCode:  exitCode,
		Completed: completed,
		Duration:  time.Since(c.start),
	}
	if c.stdoutBuf != nil {
		res.Stdout = c.stdoutBuf.Bytes()
	}
	if c.stderrBuf != nil {
		res.Stderr = c.stderrBuf.Bytes()
	}
	return res
}

// Partial returns the output captured for an execution that didn't complete.
func (c *Capture) Partial() *model.ExecResult { return c.Result(-1, false) }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	return bytes.Clone(s.buf.Bytes())
}

// tailWriter keeps the last written bytes up to a max.
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailWriter) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.buf)
}
