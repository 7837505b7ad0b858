package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/internal/model"
)

func TestRootCommandBinding(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "binding.yaml")
	err := os.WriteFile(configFile, []byte(`
backend: docker
step: test
default_timeout: 10m
docker:
  container: builder
`), 0o600)
	require.NoError(t, err)

	tests := map[string]struct {
		root       RootCommand
		expBinding model.BackendBinding
		expErr     bool
	}{
		"The local backend flags should create a local binding.": {
			root: RootCommand{Backend: "local", StepID: "build", DefaultTimeout: time.Minute, Local: model.LocalBinding{DefaultWorkingDir: "/src"}},
			expBinding: model.BackendBinding{
				Type:           model.BackendTypeLocal,
				StepID:         "build",
				DefaultTimeout: time.Minute,
				Local:          &model.LocalBinding{DefaultWorkingDir: "/src"},
			},
		},

		"The agent backend flags with an SSH host should tunnel through SSH.": {
			root: RootCommand{
				Backend:      "agent",
				AgentAddress: "127.0.0.1:7433",
				SSH:          model.SSHBinding{Host: "runner", Port: 22, User: "ci", PrivateKeyFile: "/keys/id"},
			},
			expBinding: model.BackendBinding{
				Type: model.BackendTypeAgent,
				Agent: &model.AgentBinding{
					Address: "127.0.0.1:7433",
					SSH:     &model.SSHBinding{Host: "runner", Port: 22, User: "ci", PrivateKeyFile: "/keys/id"},
				},
			},
		},

		"The docker backend without container should fail.": {
			root:   RootCommand{Backend: "docker"},
			expErr: true,
		},

		"A config file should be used instead of the backend flags.": {
			root: RootCommand{Backend: "local", ConfigFile: configFile},
			expBinding: model.BackendBinding{
				Type:           model.BackendTypeDocker,
				StepID:         "test",
				DefaultTimeout: 10 * time.Minute,
				Docker:         &model.DockerBinding{Container: "builder"},
			},
		},

		"The step flag should override the config file step.": {
			root: RootCommand{ConfigFile: configFile, StepID: "lint"},
			expBinding: model.BackendBinding{
				Type:           model.BackendTypeDocker,
				StepID:         "lint",
				DefaultTimeout: 10 * time.Minute,
				Docker:         &model.DockerBinding{Container: "builder"},
			},
		},

		"A missing config file should fail.": {
			root:   RootCommand{ConfigFile: filepath.Join(dir, "missing.yaml")},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			got, err := test.root.Binding(context.TODO())

			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expBinding, got)
			}
		})
	}
}
