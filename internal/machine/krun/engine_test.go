package krun_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	machinekrun "github.com/krunbox/krunbox/internal/machine/krun"
	"github.com/krunbox/krunbox/internal/krun/krunfake"
	"github.com/krunbox/krunbox/internal/model"
)

func validConfig() model.MachineConfig {
	return model.MachineConfig{
		Name:   "test",
		RootFS: "/images/rootfs",
	}
}

func newEngine(t *testing.T, api *krunfake.API) *machinekrun.Engine {
	t.Helper()
	engine, err := machinekrun.NewEngine(machinekrun.EngineConfig{API: api})
	require.NoError(t, err)
	return engine
}

func TestEngineCreate(t *testing.T) {
	tests := map[string]struct {
		config      model.MachineConfig
		api         *krunfake.API
		expErr      error
		validateRes func(t *testing.T, m *model.Machine, api *krunfake.API)
	}{
		"Defaults are applied when cpus and memory are omitted": {
			config: validConfig(),
			api:    &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				assert.Equal(t, uint8(1), m.CPUs)
				assert.Equal(t, uint32(512), m.MemoryMiB)
				assert.Equal(t, model.MachineStatusCreated, m.Status)
				assert.NotEmpty(t, m.ID)
			},
		},

		"Explicit cpus and memory are kept": {
			config: model.MachineConfig{
				Name:      "test",
				RootFS:    "/images/rootfs",
				CPUs:      4,
				MemoryMiB: 2048,
			},
			api: &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				assert.Equal(t, uint8(4), m.CPUs)
				assert.Equal(t, uint32(2048), m.MemoryMiB)
			},
		},

		"Workdir and mounts are applied": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				Workdir: "/work",
				Mounts:  map[string]string{"work": "/host/work", "data": "/host/data"},
			},
			api: &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				workdirs := api.CallsNamed("SetWorkdir")
				require.Len(t, workdirs, 1)
				assert.Equal(t, []string{"/work"}, workdirs[0].Args)

				mounts := api.CallsNamed("AddVirtiofs")
				require.Len(t, mounts, 2)
			},
		},

		"Port map entries are joined with commas into a single call": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				PortMap: []string{"8080:80", "2222:22"},
			},
			api: &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				calls := api.CallsNamed("SetPortMap")
				require.Len(t, calls, 1)
				assert.Equal(t, []string{"8080:80,2222:22"}, calls[0].Args)
			},
		},

		"Empty port map still issues the native call with an empty string": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				PortMap: []string{},
			},
			api: &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				calls := api.CallsNamed("SetPortMap")
				require.Len(t, calls, 1)
				assert.Equal(t, []string{""}, calls[0].Args)
			},
		},

		"Missing port map doesn't issue the native call": {
			config: validConfig(),
			api:    &krunfake.API{},
			validateRes: func(t *testing.T, m *model.Machine, api *krunfake.API) {
				assert.Empty(t, api.CallsNamed("SetPortMap"))
			},
		},

		"Context creation failure should fail without cleanup calls": {
			config: validConfig(),
			api:    &krunfake.API{FailCreate: true},
			expErr: model.ErrContextCreation,
		},

		"VM config failure should free the context": {
			config: validConfig(),
			api:    &krunfake.API{FailVMConfig: true},
			expErr: model.ErrVMConfig,
		},

		"Root failure should free the context": {
			config: validConfig(),
			api:    &krunfake.API{FailRoot: true},
			expErr: model.ErrRootSet,
		},

		"Workdir failure should free the context": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				Workdir: "/work",
			},
			api:    &krunfake.API{FailWorkdir: true},
			expErr: model.ErrWorkdirSet,
		},

		"Port map failure should free the context": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				PortMap: []string{"8080:80"},
			},
			api:    &krunfake.API{FailPortMap: true},
			expErr: model.ErrPortMapSet,
		},

		"Embedded NUL in rootfs should fail before any native call": {
			config: model.MachineConfig{
				Name:   "test",
				RootFS: "/images\x00/rootfs",
			},
			api:    &krunfake.API{},
			expErr: model.ErrInvalidString,
		},

		"Embedded NUL in workdir should fail before any native call": {
			config: model.MachineConfig{
				Name:    "test",
				RootFS:  "/images/rootfs",
				Workdir: "/wo\x00rk",
			},
			api:    &krunfake.API{},
			expErr: model.ErrInvalidString,
		},

		"Embedded NUL in a mount path should fail before any native call": {
			config: model.MachineConfig{
				Name:   "test",
				RootFS: "/images/rootfs",
				Mounts: map[string]string{"work": "/host\x00/work"},
			},
			api:    &krunfake.API{},
			expErr: model.ErrInvalidString,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			engine := newEngine(t, test.api)

			m, err := engine.Create(context.Background(), test.config)

			if test.expErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, test.expErr)
				assert.Nil(t, m)
				// No context may leak on any failure path.
				assert.Equal(t, 0, test.api.LiveCtxs())
				return
			}

			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, 1, test.api.LiveCtxs())
			if test.validateRes != nil {
				test.validateRes(t, m, test.api)
			}
		})
	}
}

func TestEngineCreateValidationIssuesNoNativeCalls(t *testing.T) {
	api := &krunfake.API{}
	engine := newEngine(t, api)

	_, err := engine.Create(context.Background(), model.MachineConfig{
		Name:   "test",
		RootFS: "/images\x00/rootfs",
	})
	require.ErrorIs(t, err, model.ErrInvalidString)
	assert.Empty(t, api.Calls())
}

func TestEngineCreateMountFailureReportsTagAndFreesOnce(t *testing.T) {
	api := &krunfake.API{FailVirtiofsTag: "data"}
	engine := newEngine(t, api)

	_, err := engine.Create(context.Background(), model.MachineConfig{
		Name:   "test",
		RootFS: "/images/rootfs",
		Mounts: map[string]string{
			"aaa":  "/host/aaa",
			"data": "/host/data",
			"zzz":  "/host/zzz",
		},
	})

	require.Error(t, err)
	var mountErr model.MountError
	require.ErrorAs(t, err, &mountErr)
	assert.Equal(t, "data", mountErr.Tag)

	// Remaining mounts were aborted, the context was freed exactly once.
	assert.Len(t, api.CallsNamed("AddVirtiofs"), 2)
	assert.Len(t, api.CallsNamed("FreeCtx"), 1)
	assert.Equal(t, 0, api.LiveCtxs())
	assert.Equal(t, 0, api.DoubleFrees())
}

func TestEngineCIDsAreMonotonic(t *testing.T) {
	api := &krunfake.API{}
	engine := newEngine(t, api)
	ctx := context.Background()

	m1, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)
	m2, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)
	m3, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	// CIDs start at 3 and never repeat, even across engines in the process.
	assert.GreaterOrEqual(t, m1.CID, uint32(3))
	assert.Equal(t, m1.CID+1, m2.CID)
	assert.Equal(t, m2.CID+1, m3.CID)
}

func TestEngineSetExec(t *testing.T) {
	ctx := context.Background()

	t.Run("Marshals argv and sorted envp", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{
			Path: "/bin/sh",
			Args: []string{"-c", "echo hi"},
			Env:  map[string]string{"FOO": "bar"},
		})
		require.NoError(t, err)

		calls := api.CallsNamed("SetExec")
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"/bin/sh", "-c", "echo hi", "FOO=bar"}, calls[0].Args)
	})

	t.Run("Second SetExec is rejected", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		spec := model.ExecSpec{Path: "/bin/sh"}
		require.NoError(t, engine.SetExec(ctx, m.CID, spec))
		err = engine.SetExec(ctx, m.CID, spec)
		assert.ErrorIs(t, err, model.ErrMachineState)
	})

	t.Run("Embedded NUL in exec path is rejected", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{Path: "/bin\x00/sh"})
		assert.ErrorIs(t, err, model.ErrInvalidString)
		assert.Empty(t, api.CallsNamed("SetExec"))
	})

	t.Run("Embedded NUL in argv and env values is rejected too", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{
			Path: "/bin/sh",
			Args: []string{"-c", "echo\x00hi"},
		})
		assert.ErrorIs(t, err, model.ErrInvalidString)

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{
			Path: "/bin/sh",
			Env:  map[string]string{"FOO": "b\x00ar"},
		})
		assert.ErrorIs(t, err, model.ErrInvalidString)
		assert.Empty(t, api.CallsNamed("SetExec"))
	})

	t.Run("Native failure surfaces as exec error", func(t *testing.T) {
		api := &krunfake.API{FailExec: true}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{Path: "/bin/sh"})
		assert.ErrorIs(t, err, model.ErrExecSet)
	})

	t.Run("Unknown CID is rejected", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)

		err := engine.SetExec(ctx, 99999, model.ExecSpec{Path: "/bin/sh"})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestEngineStart(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns the guest status code", func(t *testing.T) {
		api := &krunfake.API{StartEnterResult: 42}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		code, err := engine.Start(ctx, m.CID)
		require.NoError(t, err)
		assert.Equal(t, int32(42), code)
	})

	t.Run("Second start is rejected", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		_, err = engine.Start(ctx, m.CID)
		require.NoError(t, err)
		_, err = engine.Start(ctx, m.CID)
		assert.ErrorIs(t, err, model.ErrMachineState)
	})
}

func TestEngineFree(t *testing.T) {
	ctx := context.Background()

	t.Run("Free releases the context exactly once", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		require.NoError(t, engine.Free(ctx, m.CID))
		assert.Equal(t, 0, api.LiveCtxs())

		// A second free is caught before reaching the native library.
		err = engine.Free(ctx, m.CID)
		assert.ErrorIs(t, err, model.ErrMachineState)
		assert.Len(t, api.CallsNamed("FreeCtx"), 1)
		assert.Equal(t, 0, api.DoubleFrees())
	})

	t.Run("Native free failure is surfaced", func(t *testing.T) {
		api := &krunfake.API{FailFree: true}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)

		err = engine.Free(ctx, m.CID)
		assert.ErrorIs(t, err, model.ErrContextFree)
	})

	t.Run("Freed machine can't be configured or started", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)
		m, err := engine.Create(ctx, validConfig())
		require.NoError(t, err)
		require.NoError(t, engine.Free(ctx, m.CID))

		err = engine.SetExec(ctx, m.CID, model.ExecSpec{Path: "/bin/sh"})
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = engine.Start(ctx, m.CID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestEngineAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("Probe creates and frees a throwaway context", func(t *testing.T) {
		api := &krunfake.API{}
		engine := newEngine(t, api)

		for i := 0; i < 5; i++ {
			assert.True(t, engine.Available(ctx))
		}
		// The probe never leaves a context allocated.
		assert.Equal(t, 0, api.LiveCtxs())
		assert.Len(t, api.CallsNamed("CreateCtx"), 5)
		assert.Len(t, api.CallsNamed("FreeCtx"), 5)
	})

	t.Run("Unavailable when context creation fails", func(t *testing.T) {
		api := &krunfake.API{FailCreate: true}
		engine := newEngine(t, api)

		assert.False(t, engine.Available(ctx))
		assert.Equal(t, 0, api.LiveCtxs())
	})
}

func TestEngineVersion(t *testing.T) {
	engine := newEngine(t, &krunfake.API{})
	assert.Contains(t, engine.Version(context.Background()), "libkrun")
}

func TestEngineCheck(t *testing.T) {
	api := &krunfake.API{}
	engine := newEngine(t, api)

	results := engine.Check(context.Background())

	require.NotEmpty(t, results)
	assert.False(t, model.HasErrors(results))
	ok, _, _ := model.CountByStatus(results)
	assert.Equal(t, len(results), ok)
	assert.Equal(t, 0, api.LiveCtxs())
}
