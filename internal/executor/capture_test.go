package executor_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/model"
)

func TestCapture(t *testing.T) {
	tests := map[string]struct {
		stdout    *bytes.Buffer
		stderr    *bytes.Buffer
		expStdout string
		expStderr string
	}{
		"Without writers the output should be buffered": {
			expStdout: "out",
			expStderr: "err",
		},

		"With writers the output should be streamed": {
			stdout: &bytes.Buffer{},
			stderr: &bytes.Buffer{},
		},

		"With only a stdout writer stderr should be buffered": {
			stdout:    &bytes.Buffer{},
			expStderr: "err",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			spec := model.CommandSpec{Args: []string{"x"}}
			if test.stdout != nil {
				spec.Stdout = test.stdout
			}
			if test.stderr != nil {
				spec.Stderr = test.stderr
			}

			c := executor.NewCapture(spec)
			_, _ = c.Stdout().Write([]byte("out"))
			_, _ = c.Stderr().Write([]byte("err"))
			res := c.Result(3, true)

			assert.Equal(3, res.ExitCode)
			assert.True(res.Completed)
			assert.Equal(test.expStdout, string(res.Stdout))
			assert.Equal(test.expStderr, string(res.Stderr))
			if test.stdout != nil {
				assert.Equal("out", test.stdout.String())
			}
			if test.stderr != nil {
				assert.Equal("err", test.stderr.String())
			}
			assert.Equal("err", string(c.StderrTail()))
		})
	}
}

func TestCaptureStderrTail(t *testing.T) {
	assert := assert.New(t)

	c := executor.NewCapture(model.CommandSpec{Args: []string{"x"}})
	_, _ = c.Stderr().Write([]byte(strings.Repeat("a", 2000)))
	_, _ = c.Stderr().Write([]byte("end"))

	tail := c.StderrTail()
	assert.Len(tail, 512)
	assert.True(bytes.HasSuffix(tail, []byte("aend")))

	partial := c.Partial()
	assert.False(partial.Completed)
	assert.Len(partial.Stderr, 2003)
}
