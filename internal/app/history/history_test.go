package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/stepbridge/internal/app/history"
	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config history.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: history.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
		},
		"missing repository should fail": {
			config: history.ServiceConfig{Logger: log.Noop},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := history.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	t0 := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	ok := model.ExecutionRecord{ID: "id3", StepID: "build", Backend: "local", ExitCode: 0, Completed: true, StartedAt: t0.Add(2 * time.Minute)}
	exit1 := model.ExecutionRecord{ID: "id2", StepID: "build", Backend: "local", ExitCode: 1, Completed: true, StartedAt: t0.Add(time.Minute)}
	timeout := model.ExecutionRecord{ID: "id1", StepID: "build", Backend: "local", ExitCode: -1, ErrorKind: model.ErrorKindTimeoutExceeded, StartedAt: t0}

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       history.Request
		expResult []model.ExecutionRecord
		expErr    bool
	}{
		"Listing should pass the filters to the repository.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListExecutions", mock.Anything, model.ExecutionListOpts{StepID: "build", Limit: 2}).Once().Return([]model.ExecutionRecord{ok, exit1}, nil)
			},
			req:       history.Request{StepID: "build", Limit: 2},
			expResult: []model.ExecutionRecord{ok, exit1},
		},

		"Listing only failures should filter and limit the results.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListExecutions", mock.Anything, model.ExecutionListOpts{}).Once().Return([]model.ExecutionRecord{ok, exit1, timeout}, nil)
			},
			req:       history.Request{OnlyFailed: true, Limit: 1},
			expResult: []model.ExecutionRecord{exit1},
		},

		"Getting by ID should return a single execution.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetExecution", mock.Anything, "id1").Once().Return(&timeout, nil)
			},
			req:       history.Request{ID: "id1", StepID: "ignored"},
			expResult: []model.ExecutionRecord{timeout},
		},

		"A missing execution should fail.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetExecution", mock.Anything, "missing").Once().Return(nil, model.ErrNotFound)
			},
			req:    history.Request{ID: "missing"},
			expErr: true,
		},

		"A repository error should fail.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListExecutions", mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("something"))
			},
			expErr: true,
		},

		"A negative limit should fail.": {
			mock:   func(m *storagemock.MockRepository) {},
			req:    history.Request{Limit: -1},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mRepo := storagemock.NewMockRepository(t)
			test.mock(mRepo)

			svc, err := history.NewService(history.ServiceConfig{Repository: mRepo})
			require.NoError(err)

			got, err := svc.Run(context.TODO(), test.req)

			if test.expErr {
				assert.Error(err)
			} else if assert.NoError(err) {
				assert.Equal(test.expResult, got)
			}
		})
	}
}
