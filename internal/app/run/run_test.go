package run_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/krunbox/krunbox/internal/app/run"
	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/machine/machinemock"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage/storagemock"
)

func validConfig(name string) model.MachineConfig {
	return model.MachineConfig{
		Name:   name,
		RootFS: "/images/rootfs",
	}
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    run.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config": {
			cfg: run.ServiceConfig{
				Engine:     &machinemock.MockEngine{},
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
		},
		"Missing engine returns error": {
			cfg: run.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: true,
			errMsg: "engine is required",
		},
		"Missing repository returns error": {
			cfg: run.ServiceConfig{
				Engine: &machinemock.MockEngine{},
			},
			expErr: true,
			errMsg: "repository is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := run.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	tests := map[string]struct {
		opts        run.RunOptions
		setupMocks  func(eng *machinemock.MockEngine, repo *storagemock.MockRepository)
		expErr      bool
		errMsg      string
		validateRes func(t *testing.T, res *run.Result)
	}{
		"Successful run records the exit status": {
			opts: run.RunOptions{Config: validConfig("test-machine")},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "test-machine").
					Return((*model.Machine)(nil), model.ErrNotFound)

				eng.On("Create", mock.Anything, mock.Anything).
					Return(&model.Machine{ID: "01HRW9YZTEST000000000000", Name: "test-machine", CID: 3}, nil)

				repo.On("CreateMachine", mock.Anything, mock.MatchedBy(func(m model.Machine) bool {
					return m.Status == model.MachineStatusRunning && m.StartedAt != nil
				})).Return(nil)

				eng.On("Start", mock.Anything, uint32(3)).
					Return(int32(42), nil)

				repo.On("UpdateMachine", mock.Anything, mock.MatchedBy(func(m model.Machine) bool {
					return m.Status == model.MachineStatusStopped &&
						m.ExitCode != nil && *m.ExitCode == 42 &&
						m.StoppedAt != nil
				})).Return(nil)

				eng.On("Free", mock.Anything, uint32(3)).
					Return(nil)
			},
			validateRes: func(t *testing.T, res *run.Result) {
				assert.Equal(t, int32(42), res.ExitCode)
				assert.Equal(t, model.MachineStatusStopped, res.Machine.Status)
			},
		},
		"Exec command set before start with config env merged under it": {
			opts: run.RunOptions{
				Config: model.MachineConfig{
					Name:   "test-machine",
					RootFS: "/images/rootfs",
					Env:    map[string]string{"FOO": "config", "BAR": "config"},
				},
				Exec: &model.ExecSpec{
					Path: "/bin/sh",
					Args: []string{"/bin/sh", "-c", "true"},
					Env:  map[string]string{"FOO": "exec"},
				},
			},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "test-machine").
					Return((*model.Machine)(nil), model.ErrNotFound)

				eng.On("Create", mock.Anything, mock.Anything).
					Return(&model.Machine{ID: "01HRW9YZTEST000000000001", Name: "test-machine", CID: 4}, nil)

				eng.On("SetExec", mock.Anything, uint32(4), mock.MatchedBy(func(spec model.ExecSpec) bool {
					return spec.Path == "/bin/sh" &&
						spec.Env["FOO"] == "exec" &&
						spec.Env["BAR"] == "config"
				})).Return(nil)

				repo.On("CreateMachine", mock.Anything, mock.Anything).Return(nil)
				eng.On("Start", mock.Anything, uint32(4)).Return(int32(0), nil)
				repo.On("UpdateMachine", mock.Anything, mock.Anything).Return(nil)
				eng.On("Free", mock.Anything, uint32(4)).Return(nil)
			},
			validateRes: func(t *testing.T, res *run.Result) {
				assert.Equal(t, int32(0), res.ExitCode)
			},
		},
		"Invalid config returns validation error": {
			opts: run.RunOptions{Config: validConfig("")},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				// No mocks needed, fails at validation.
			},
			expErr: true,
			errMsg: "invalid config",
		},
		"Name conflict returns error": {
			opts: run.RunOptions{Config: validConfig("existing")},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "existing").
					Return(&model.Machine{ID: "01HRW9YZTEST000000000002", Name: "existing"}, nil)
			},
			expErr: true,
			errMsg: "already exists",
		},
		"Exec failure frees the context": {
			opts: run.RunOptions{
				Config: validConfig("test-machine"),
				Exec:   &model.ExecSpec{Path: "/bin/sh"},
			},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "test-machine").
					Return((*model.Machine)(nil), model.ErrNotFound)

				eng.On("Create", mock.Anything, mock.Anything).
					Return(&model.Machine{ID: "01HRW9YZTEST000000000003", Name: "test-machine", CID: 5}, nil)

				eng.On("SetExec", mock.Anything, uint32(5), mock.Anything).
					Return(model.ErrExecSet)

				eng.On("Free", mock.Anything, uint32(5)).
					Return(nil)
			},
			expErr: true,
			errMsg: "could not set exec command",
		},
		"Start failure records a failed machine and frees the context": {
			opts: run.RunOptions{Config: validConfig("test-machine")},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "test-machine").
					Return((*model.Machine)(nil), model.ErrNotFound)

				eng.On("Create", mock.Anything, mock.Anything).
					Return(&model.Machine{ID: "01HRW9YZTEST000000000004", Name: "test-machine", CID: 6}, nil)

				repo.On("CreateMachine", mock.Anything, mock.Anything).Return(nil)

				eng.On("Start", mock.Anything, uint32(6)).
					Return(int32(-1), errors.New("boot failed"))

				repo.On("UpdateMachine", mock.Anything, mock.MatchedBy(func(m model.Machine) bool {
					return m.Status == model.MachineStatusFailed && m.ExitCode == nil
				})).Return(nil)

				eng.On("Free", mock.Anything, uint32(6)).
					Return(nil)
			},
			expErr: true,
			errMsg: "could not start machine",
		},
		"Repository save error frees the context": {
			opts: run.RunOptions{Config: validConfig("test-machine")},
			setupMocks: func(eng *machinemock.MockEngine, repo *storagemock.MockRepository) {
				repo.On("GetMachineByName", mock.Anything, "test-machine").
					Return((*model.Machine)(nil), model.ErrNotFound)

				eng.On("Create", mock.Anything, mock.Anything).
					Return(&model.Machine{ID: "01HRW9YZTEST000000000005", Name: "test-machine", CID: 8}, nil)

				repo.On("CreateMachine", mock.Anything, mock.Anything).
					Return(errors.New("database error"))

				eng.On("Free", mock.Anything, uint32(8)).
					Return(nil)
			},
			expErr: true,
			errMsg: "could not save machine",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mockEngine := machinemock.NewMockEngine(t)
			mockRepo := storagemock.NewMockRepository(t)
			tt.setupMocks(mockEngine, mockRepo)

			svc, err := run.NewService(run.ServiceConfig{
				Engine:     mockEngine,
				Repository: mockRepo,
				Logger:     log.Noop,
			})
			require.NoError(t, err)

			result, err := svc.Run(context.Background(), tt.opts)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				if tt.validateRes != nil {
					tt.validateRes(t, result)
				}
			}
		})
	}
}
