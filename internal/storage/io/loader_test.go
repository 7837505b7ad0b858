package io

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/internal/model"
)

func TestBindingYAMLRepositoryGetBinding(t *testing.T) {
	tests := map[string]struct {
		data       string
		path       string
		expBinding model.BackendBinding
		expErr     bool
	}{
		"A local binding without options should load with defaults.": {
			data: `backend: local
`,
			expBinding: model.BackendBinding{
				Type:  model.BackendTypeLocal,
				Local: &model.LocalBinding{},
			},
		},

		"A local binding should load its options.": {
			data: `backend: local
step: build
default_timeout: 90s
local:
  working_dir: /src
  create_working_dir: true
`,
			expBinding: model.BackendBinding{
				Type:           model.BackendTypeLocal,
				StepID:         "build",
				DefaultTimeout: 90 * time.Second,
				Local:          &model.LocalBinding{DefaultWorkingDir: "/src", CreateWorkingDir: true},
			},
		},

		"A docker binding should load.": {
			data: `backend: docker
docker:
  container: ci-runner
`,
			expBinding: model.BackendBinding{
				Type:   model.BackendTypeDocker,
				Docker: &model.DockerBinding{Container: "ci-runner"},
			},
		},

		"A kube binding should load.": {
			data: `backend: kube
kube:
  namespace: ci
  pod: step-1
  container: main
`,
			expBinding: model.BackendBinding{
				Type: model.BackendTypeKube,
				Kube: &model.KubeBinding{Namespace: "ci", Pod: "step-1", Container: "main"},
			},
		},

		"An ssh binding should load.": {
			data: `backend: ssh
ssh:
  host: build.example.com
  port: 2222
  user: ci
  private_key_file: /keys/id_ed25519
  known_hosts_file: /keys/known_hosts
`,
			expBinding: model.BackendBinding{
				Type: model.BackendTypeSSH,
				SSH: &model.SSHBinding{
					Host:           "build.example.com",
					Port:           2222,
					User:           "ci",
					PrivateKeyFile: "/keys/id_ed25519",
					KnownHostsFile: "/keys/known_hosts",
				},
			},
		},

		"An agent binding through ssh should load.": {
			data: `backend: agent
agent:
  address: 127.0.0.1:7070
  ssh:
    host: build.example.com
    user: ci
    private_key_file: /keys/id_ed25519
`,
			expBinding: model.BackendBinding{
				Type: model.BackendTypeAgent,
				Agent: &model.AgentBinding{
					Address: "127.0.0.1:7070",
					SSH:     &model.SSHBinding{Host: "build.example.com", User: "ci", PrivateKeyFile: "/keys/id_ed25519"},
				},
			},
		},

		"A missing backend should fail.": {
			data:   `step: build`,
			expErr: true,
		},

		"An unknown backend should fail.": {
			data:   `backend: vm`,
			expErr: true,
		},

		"A docker binding without container should fail.": {
			data:   `backend: docker`,
			expErr: true,
		},

		"A kube binding without pod should fail.": {
			data: `backend: kube
kube:
  namespace: ci
`,
			expErr: true,
		},

		"An ssh binding without user should fail.": {
			data: `backend: ssh
ssh:
  host: h
  private_key_file: k
`,
			expErr: true,
		},

		"An invalid timeout should fail.": {
			data: `backend: local
default_timeout: soon
`,
			expErr: true,
		},

		"A negative timeout should fail.": {
			data: `backend: local
default_timeout: -1s
`,
			expErr: true,
		},

		"Invalid YAML should fail.": {
			data:   `backend: [local`,
			expErr: true,
		},

		"A missing file should fail.": {
			path:   "missing.yaml",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			path := test.path
			if path == "" {
				path = "binding.yaml"
			}
			repo := NewBindingYAMLRepository(fstest.MapFS{
				"binding.yaml": &fstest.MapFile{Data: []byte(test.data)},
			})

			gotBinding, err := repo.GetBinding(context.TODO(), path)
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)
			assert.Equal(test.expBinding, gotBinding)
		})
	}
}

func TestBindingYAMLRepositoryValidationError(t *testing.T) {
	repo := NewBindingYAMLRepository(fstest.MapFS{
		"binding.yaml": &fstest.MapFile{Data: []byte("backend: docker\n")},
	})

	_, err := repo.GetBinding(context.TODO(), "binding.yaml")
	assert.ErrorIs(t, err, model.ErrNotValid)
}
