package lib_test

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/pkg/lib"
	liblog "github.com/slok/stepbridge/pkg/lib/log"
)

// newTestClient creates a client with a temp SQLite DB for test isolation.
func newTestClient(t *testing.T, cfg lib.Config) *lib.Client {
	t.Helper()

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	}
	cfg.Logger = liblog.Noop

	client, err := lib.New(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func skipNonPOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX commands required")
	}
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		cfg   lib.Config
		expIs error
	}{
		"An empty config should use the local backend.": {},

		"The fake backend should work.": {
			cfg: lib.Config{Backend: lib.BackendFake},
		},

		"A docker backend without container should fail.": {
			cfg:   lib.Config{Backend: lib.BackendDocker},
			expIs: lib.ErrNotValid,
		},

		"An ssh backend without host should fail.": {
			cfg:   lib.Config{Backend: lib.BackendSSH, SSH: &lib.SSHConfig{User: "ci"}},
			expIs: lib.ErrNotValid,
		},

		"An unknown backend should fail.": {
			cfg:   lib.Config{Backend: "vm"},
			expIs: lib.ErrNotValid,
		},

		"A negative default timeout should fail.": {
			cfg:   lib.Config{DefaultTimeout: -time.Second},
			expIs: lib.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			client, err := lib.New(context.Background(), test.cfg)

			if test.expIs != nil {
				require.ErrorIs(err, test.expIs)
				return
			}
			require.NoError(err)
			require.NoError(client.Close())
		})
	}
}

func TestClientRun(t *testing.T) {
	skipNonPOSIX(t)
	dir := t.TempDir()

	tests := map[string]struct {
		cfg       lib.Config
		opts      lib.RunOpts
		expResult func(t *testing.T, res *lib.Result)
		expIs     error
	}{
		"A command should return its output and exit code.": {
			opts: lib.RunOpts{Shell: "echo out; echo err >&2; exit 3"},
			expResult: func(t *testing.T, res *lib.Result) {
				assert.Equal(t, 3, res.ExitCode)
				assert.Equal(t, "out\n", string(res.Stdout))
				assert.Equal(t, "err\n", string(res.Stderr))
				assert.True(t, res.Completed)
			},
		},

		"A command without working dir should run on the backend default.": {
			cfg:  lib.Config{Local: &lib.LocalConfig{WorkingDir: dir}},
			opts: lib.RunOpts{Args: []string{"pwd"}},
			expResult: func(t *testing.T, res *lib.Result) {
				assert.Contains(t, string(res.Stdout), filepath.Base(dir))
			},
		},

		"A command with env should not inherit the ambient environment.": {
			opts: lib.RunOpts{Args: []string{"/usr/bin/env"}, Env: map[string]string{"STEP_VAR": "1"}},
			expResult: func(t *testing.T, res *lib.Result) {
				assert.Equal(t, "STEP_VAR=1", strings.TrimSpace(string(res.Stdout)))
			},
		},

		"A missing executable should fail with spawn failure.": {
			opts:  lib.RunOpts{Args: []string{"stepbridge-missing-command"}},
			expIs: lib.ErrSpawnFailure,
		},

		"A command over the default timeout should fail with timeout.": {
			cfg:   lib.Config{DefaultTimeout: 100 * time.Millisecond},
			opts:  lib.RunOpts{Args: []string{"sleep", "10"}},
			expIs: lib.ErrTimeoutExceeded,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			client := newTestClient(t, test.cfg)
			res, err := client.Run(context.Background(), test.opts)

			if test.expIs != nil {
				require.ErrorIs(err, test.expIs)
				return
			}
			require.NoError(err)
			test.expResult(t, res)
		})
	}
}

func TestClientPlatformAndEnvironment(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newTestClient(t, lib.Config{Backend: lib.BackendFake})

	assert.Equal(lib.PlatformLinux, client.Platform(context.Background()))
	env, err := client.Environment(context.Background())
	require.NoError(err)
	assert.Empty(env)
}

func TestClientRunScript(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newTestClient(t, lib.Config{Backend: lib.BackendFake})

	var out bytes.Buffer
	err := client.RunScript(context.Background(), "step.star", []byte(`
r = subprocess.run(["make"])
print(platform.system(), r.returncode)
`), lib.ScriptOpts{Output: &out})
	require.NoError(err)
	assert.Equal("Linux 0\n", out.String())
}

func TestClientHistory(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client := newTestClient(t, lib.Config{Backend: lib.BackendFake, StepID: "build"})

	_, err := client.Run(context.Background(), lib.RunOpts{Args: []string{"go", "build"}})
	require.NoError(err)
	_, err = client.Run(context.Background(), lib.RunOpts{Args: []string{"go", "test"}})
	require.NoError(err)

	records, err := client.History(context.Background(), lib.HistoryOpts{StepID: "build"})
	require.NoError(err)
	require.Len(records, 2)
	assert.Equal("fake", records[0].Backend)
	assert.ElementsMatch([]string{"go build", "go test"}, []string{records[0].Command, records[1].Command})

	failed, err := client.History(context.Background(), lib.HistoryOpts{OnlyFailed: true})
	require.NoError(err)
	assert.Empty(failed)
}

func TestClientHistoryInMemory(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	client, err := lib.New(context.Background(), lib.Config{Backend: lib.BackendFake})
	require.NoError(err)
	defer client.Close()

	_, err = client.Run(context.Background(), lib.RunOpts{Shell: "make"})
	require.NoError(err)

	records, err := client.History(context.Background(), lib.HistoryOpts{})
	require.NoError(err)
	require.Len(records, 1)
	assert.Equal("make", records[0].Command)
}

func TestClientDoctor(t *testing.T) {
	client := newTestClient(t, lib.Config{Backend: lib.BackendFake})

	checks := client.Doctor(context.Background())
	require.Len(t, checks, 1)
	assert.Equal(t, lib.CheckStatusOK, checks[0].Status)
}
