//go:build !windows

package local_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/slok/stepbridge/internal/executor/local"
	"github.com/slok/stepbridge/internal/model"
)

func newBackend(t *testing.T, cfg local.BackendConfig) *local.Backend {
	t.Helper()
	b, err := local.NewBackend(cfg)
	require.NoError(t, err)
	return b
}

func TestBackendExecute(t *testing.T) {
	defaultDir := t.TempDir()
	otherDir := t.TempDir()
	subDir := filepath.Join(defaultDir, "sub")
	require.NoError(t, os.Mkdir(subDir, 0755))
	pathEnv := model.EnvSnapshot{"PATH": os.Getenv("PATH")}

	tests := map[string]struct {
		spec        model.CommandSpec
		expStdout   string
		expStderr   string
		expExitCode int
		expErr      error
	}{
		"An argv command should return its output": {
			spec:      model.CommandSpec{Args: []string{"echo", "hello", "world"}, Env: pathEnv},
			expStdout: "hello world\n",
		},

		"A shell command should return its output": {
			spec:      model.CommandSpec{Shell: "echo out; echo err >&2"},
			expStdout: "out\n",
			expStderr: "err\n",
		},

		"A non zero exit code should be a result": {
			spec:        model.CommandSpec{Args: []string{"sh", "-c", "exit 7"}, Env: pathEnv},
			expExitCode: 7,
		},

		"A non zero exit code in shell mode should be a result": {
			spec:        model.CommandSpec{Shell: "exit 7"},
			expExitCode: 7,
		},

		"The environment should be the command one": {
			spec:      model.CommandSpec{Args: []string{"sh", "-c", `echo "$FOO:$STEPBRIDGE_UNSET"`}, Env: model.EnvSnapshot{"FOO": "bar", "PATH": os.Getenv("PATH")}},
			expStdout: "bar:\n",
		},

		"The environment should be the command one in shell mode": {
			spec:      model.CommandSpec{Shell: `echo "$FOO"`, Env: model.EnvSnapshot{"FOO": "bar"}},
			expStdout: "bar\n",
		},

		"An empty working dir should use the backend default": {
			spec:      model.CommandSpec{Args: []string{"pwd"}, Env: pathEnv},
			expStdout: defaultDir + "\n",
		},

		"An empty working dir should use the backend default in shell mode": {
			spec:      model.CommandSpec{Shell: "pwd", Env: pathEnv},
			expStdout: defaultDir + "\n",
		},

		"An explicit working dir should be used": {
			spec:      model.CommandSpec{Args: []string{"pwd"}, WorkingDir: otherDir, Env: pathEnv},
			expStdout: otherDir + "\n",
		},

		"A relative working dir should be relative to the backend default": {
			spec:      model.CommandSpec{Args: []string{"pwd"}, WorkingDir: "sub", Env: pathEnv},
			expStdout: subDir + "\n",
		},

		"A relative working dir should be relative to the backend default in shell mode": {
			spec:      model.CommandSpec{Shell: "pwd", WorkingDir: "sub", Env: pathEnv},
			expStdout: subDir + "\n",
		},

		"Stdin should be sent to the command": {
			spec:      model.CommandSpec{Args: []string{"cat"}, Stdin: strings.NewReader("piped"), Env: pathEnv},
			expStdout: "piped",
		},

		"A missing executable should be a spawn failure": {
			spec:   model.CommandSpec{Args: []string{"stepbridge-definitely-not-here"}, Env: pathEnv},
			expErr: model.ErrSpawnFailure,
		},

		"An executable missing from the command PATH should be a spawn failure": {
			spec:   model.CommandSpec{Args: []string{"ls", "/"}, Env: model.EnvSnapshot{"PATH": "/nonexistent"}},
			expErr: model.ErrSpawnFailure,
		},

		"An executable without PATH on an empty environment should be a spawn failure": {
			spec:   model.CommandSpec{Args: []string{"ls", "/"}, Env: model.EnvSnapshot{}},
			expErr: model.ErrSpawnFailure,
		},

		"An executable path should run on an empty environment": {
			spec:      model.CommandSpec{Args: []string{"/bin/sh", "-c", "echo ok"}, Env: model.EnvSnapshot{}},
			expStdout: "ok\n",
		},

		"A missing working dir should be a spawn failure": {
			spec:   model.CommandSpec{Args: []string{"pwd"}, WorkingDir: filepath.Join(otherDir, "missing"), Env: pathEnv},
			expErr: model.ErrSpawnFailure,
		},

		"A bad shell command should be a spawn failure": {
			spec:   model.CommandSpec{Shell: "echo $("},
			expErr: model.ErrSpawnFailure,
		},

		"An invalid command should fail": {
			spec:   model.CommandSpec{},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			b := newBackend(t, local.BackendConfig{DefaultWorkingDir: defaultDir})
			res, err := b.Execute(context.TODO(), test.spec)

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				return
			}
			require.NoError(err)
			assert.True(res.Completed)
			assert.Equal(test.expExitCode, res.ExitCode)
			assert.Equal(test.expStdout, string(res.Stdout))
			assert.Equal(test.expStderr, string(res.Stderr))
		})
	}
}

func TestBackendExecuteStreamed(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	b := newBackend(t, local.BackendConfig{})
	var stdout, stderr bytes.Buffer
	res, err := b.Execute(context.TODO(), model.CommandSpec{
		Args:   []string{"sh", "-c", "echo out; echo err >&2"},
		Env:    model.EnvSnapshot{"PATH": os.Getenv("PATH")},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(err)

	assert.Equal("out\n", stdout.String())
	assert.Equal("err\n", stderr.String())
	assert.Empty(res.Stdout)
	assert.Empty(res.Stderr)
}

func TestBackendCreateWorkingDir(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := filepath.Join(t.TempDir(), "a", "b")
	b := newBackend(t, local.BackendConfig{CreateWorkingDir: true})
	res, err := b.Execute(context.TODO(), model.CommandSpec{Args: []string{"pwd"}, WorkingDir: dir, Env: model.EnvSnapshot{"PATH": os.Getenv("PATH")}})
	require.NoError(err)

	assert.Equal(dir+"\n", string(res.Stdout))
	assert.DirExists(dir)
}

func TestBackendTimeout(t *testing.T) {
	pathEnv := model.EnvSnapshot{"PATH": os.Getenv("PATH")}

	tests := map[string]struct {
		spec        model.CommandSpec
		expChildPID bool
	}{
		"An argv command should be killed with its children": {
			spec:        model.CommandSpec{Args: []string{"sh", "-c", "sleep 10 & echo $!; wait"}, Env: pathEnv},
			expChildPID: true,
		},

		"A shell command should be killed": {
			spec: model.CommandSpec{Shell: "echo started; sleep 10", Env: pathEnv},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			b := newBackend(t, local.BackendConfig{})
			spec := test.spec
			spec.Timeout = 100 * time.Millisecond

			start := time.Now()
			_, err := b.Execute(context.TODO(), spec)
			assert.Less(time.Since(start), 5*time.Second)
			require.ErrorIs(err, model.ErrTimeoutExceeded)

			partial := model.PartialResult(err)
			require.NotNil(partial)
			assert.False(partial.Completed)
			if !test.expChildPID {
				assert.Equal("started\n", string(partial.Stdout))
				return
			}

			// The background child must not survive the command.
			pid, err := strconv.Atoi(strings.TrimSpace(string(partial.Stdout)))
			require.NoError(err)
			assert.Eventually(func() bool {
				return unix.Kill(pid, 0) == unix.ESRCH
			}, 3*time.Second, 10*time.Millisecond)
		})
	}
}

func TestBackendCancel(t *testing.T) {
	assert := assert.New(t)

	b := newBackend(t, local.BackendConfig{})
	pathEnv := model.EnvSnapshot{"PATH": os.Getenv("PATH")}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := b.Execute(ctx, model.CommandSpec{Args: []string{"sleep", "10"}, Env: pathEnv})
	assert.ErrorIs(err, model.ErrCancelled)

	_, err = b.Execute(ctx, model.CommandSpec{Args: []string{"echo"}, Env: pathEnv})
	assert.ErrorIs(err, model.ErrCancelled)
}

func TestBackendConcurrentEnvIsolation(t *testing.T) {
	b := newBackend(t, local.BackendConfig{})

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value := fmt.Sprintf("value-%d", i)
			res, err := b.Execute(context.TODO(), model.CommandSpec{
				Args: []string{"sh", "-c", `echo "$STEP_VALUE"`},
				Env:  model.EnvSnapshot{"STEP_VALUE": value, "PATH": os.Getenv("PATH")},
			})
			if assert.NoError(t, err) {
				assert.Equal(t, value+"\n", string(res.Stdout))
			}
		}()
	}
	wg.Wait()
}

func TestBackendPlatform(t *testing.T) {
	assert := assert.New(t)

	b := newBackend(t, local.BackendConfig{})
	p, err := b.Platform(context.TODO())
	assert.NoError(err)
	assert.NotEmpty(p.OS)
	assert.NotEmpty(p.Architecture)
}
