package executor_test

import (
	"bytes"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/internal/executor"
	"github.com/slok/stepbridge/internal/model"
)

func TestNewPOSIXCommandArgv(t *testing.T) {
	tests := map[string]struct {
		spec    model.CommandSpec
		expHead []string
		expTail []string
	}{
		"An argv command should be wrapped with the environment replaced": {
			spec:    model.CommandSpec{Args: []string{"echo", "hi"}, Env: model.EnvSnapshot{"B": "2", "A": "1"}},
			expHead: []string{"env", "-i", "A=1", "B=2", "/bin/sh", "-c"},
			expTail: []string{"", "echo", "hi"},
		},

		"A shell command should be wrapped with a shell": {
			spec:    model.CommandSpec{Shell: "echo $A", WorkingDir: "/tmp"},
			expHead: []string{"env", "-i", "/bin/sh", "-c"},
			expTail: []string{"/tmp", "/bin/sh", "-c", "echo $A"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			cmd := executor.NewPOSIXCommand(test.spec)
			assert.Equal(test.expHead, cmd.Argv[:len(test.expHead)])
			assert.Equal(test.expTail, cmd.Argv[len(cmd.Argv)-len(test.expTail):])
			assert.NotEmpty(executor.POSIXSpawnMarker(cmd.Argv))
		})
	}
}

func TestNewPOSIXCommandUniqueMarker(t *testing.T) {
	assert := assert.New(t)

	spec := model.CommandSpec{Args: []string{"true"}}
	m1 := executor.POSIXSpawnMarker(executor.NewPOSIXCommand(spec).Argv)
	m2 := executor.POSIXSpawnMarker(executor.NewPOSIXCommand(spec).Argv)
	assert.NotEmpty(m1)
	assert.NotEqual(m1, m2)

	// Another command marker is not a spawn failure of this one.
	cmd := executor.NewPOSIXCommand(spec)
	_, ok := cmd.SpawnFailure(127, []byte(m1+" executable true not found\n"))
	assert.False(ok)

	msg, ok := cmd.SpawnFailure(127, []byte("out\n"+executor.POSIXSpawnMarker(cmd.Argv)+" executable true not found\n"))
	assert.True(ok)
	assert.Equal("executable true not found", msg)

	_, ok = cmd.SpawnFailure(1, []byte(executor.POSIXSpawnMarker(cmd.Argv)+" executable true not found\n"))
	assert.False(ok)
}

func TestPOSIXCommandRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX only")
	}
	if _, err := exec.LookPath("env"); err != nil {
		t.Skip("env not available")
	}

	tests := map[string]struct {
		spec          model.CommandSpec
		expExitCode   int
		expStdout     string
		expSpawnError bool
	}{
		"The replaced environment should be the only one": {
			spec:      model.CommandSpec{Shell: `echo "$FOO-$HOME"`, Env: model.EnvSnapshot{"FOO": "bar"}},
			expStdout: "bar-\n",
		},

		"The working directory should be applied": {
			spec:      model.CommandSpec{Shell: "pwd", WorkingDir: "/"},
			expStdout: "/\n",
		},

		"Non zero exit codes should be kept": {
			spec:        model.CommandSpec{Shell: "exit 7"},
			expExitCode: 7,
		},

		"A missing executable should be a spawn failure": {
			spec:          model.CommandSpec{Args: []string{"stepbridge-does-not-exist"}, Env: model.EnvSnapshot{"PATH": "/usr/bin:/bin"}},
			expExitCode:   127,
			expSpawnError: true,
		},

		"A missing working directory should be a spawn failure": {
			spec:          model.CommandSpec{Args: []string{"true"}, WorkingDir: "/stepbridge/does/not/exist"},
			expExitCode:   127,
			expSpawnError: true,
		},

		"A command printing a spawn failure like message should not be a spawn failure": {
			spec:        model.CommandSpec{Shell: `echo "stepbridge: spawn failure: executable x not found" >&2; exit 127`},
			expExitCode: 127,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			wrapped := executor.NewPOSIXCommand(test.spec)
			argv := wrapped.Argv
			var stdout, stderr bytes.Buffer
			cmd := exec.Command(argv[0], argv[1:]...)
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			err := cmd.Run()

			exitCode := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				require.NoError(err)
			}

			assert.Equal(test.expExitCode, exitCode)
			msg, spawnFailed := wrapped.SpawnFailure(exitCode, stderr.Bytes())
			assert.Equal(test.expSpawnError, spawnFailed)
			if test.expSpawnError {
				assert.NotEmpty(msg)
			} else {
				assert.Equal(test.expStdout, stdout.String())
			}
		})
	}
}
