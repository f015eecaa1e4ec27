package krun

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	libkrun "github.com/krunbox/krunbox/internal/krun"
	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
)

// EngineConfig is the configuration for the libkrun engine.
type EngineConfig struct {
	// API is the native call surface. If empty the real library is used when
	// the platform supports it.
	API libkrun.API
	// Logger for logging.
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.API == nil && libkrun.Supported() {
		c.API = libkrun.NewNative()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "machine.Krun"})
	return nil
}

type handleState int

const (
	stateCreated handleState = iota
	stateExecSet
	stateStarted
)

// handle tracks the lifecycle state of one native context. The mutex
// serializes configuration calls for the context and gates the state
// transitions, so a freed or started context can never be configured again.
type handle struct {
	mu      sync.Mutex
	ctxID   uint32
	state   handleState
	running bool
}

// Engine is the libkrun implementation of the machine.Engine interface.
//
// On platforms where libkrun is not linked, Available returns false and every
// lifecycle operation fails with model.ErrUnsupportedPlatform without
// attempting any native call.
type Engine struct {
	api     libkrun.API
	handles map[uint32]*handle // keyed by CID, entries removed on free.
	mu      sync.Mutex
	logger  log.Logger
}

// NewEngine creates a new libkrun engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		api:     cfg.API,
		handles: map[uint32]*handle{},
		logger:  cfg.Logger,
	}, nil
}

// Available checks that a context can be created, freeing it immediately so
// no context is ever left allocated by the probe.
func (e *Engine) Available(ctx context.Context) bool {
	if e.api == nil {
		return false
	}

	ctxID := e.api.CreateCtx()
	if ctxID == libkrun.InvalidCtx {
		return false
	}
	e.freeCtx(ctxID)

	return true
}

// Version returns the static library description.
func (e *Engine) Version(ctx context.Context) string {
	return libkrun.LibraryVersion
}

// Create creates and fully configures a native context. Configuration is
// applied one field at a time; on any failure the partially configured
// context is freed before the error is surfaced, so a failed create never
// leaks a context.
func (e *Engine) Create(ctx context.Context, cfg model.MachineConfig) (*model.Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if e.api == nil {
		return nil, model.ErrUnsupportedPlatform
	}

	// Validate every string before the first native call so a validation
	// failure never leaves a context half-configured.
	if err := e.checkConfigStrings(cfg); err != nil {
		return nil, err
	}

	ctxID := e.api.CreateCtx()
	if ctxID == libkrun.InvalidCtx {
		return nil, model.ErrContextCreation
	}

	cpus := cfg.CPUs
	if cpus == 0 {
		cpus = model.DefaultCPUs
	}
	memoryMiB := cfg.MemoryMiB
	if memoryMiB == 0 {
		memoryMiB = model.DefaultMemoryMiB
	}

	if ret := e.api.SetVMConfig(ctxID, cpus, memoryMiB); ret != 0 {
		e.freeCtx(ctxID)
		return nil, fmt.Errorf("%w (status %d)", model.ErrVMConfig, ret)
	}

	if ret := e.api.SetRoot(ctxID, cfg.RootFS); ret != 0 {
		e.freeCtx(ctxID)
		return nil, fmt.Errorf("%w (status %d)", model.ErrRootSet, ret)
	}

	if cfg.Workdir != "" {
		if ret := e.api.SetWorkdir(ctxID, cfg.Workdir); ret != 0 {
			e.freeCtx(ctxID)
			return nil, fmt.Errorf("%w (status %d)", model.ErrWorkdirSet, ret)
		}
	}

	// Mount order is irrelevant (tags are unique), sorted for determinism.
	tags := make([]string, 0, len(cfg.Mounts))
	for tag := range cfg.Mounts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if ret := e.api.AddVirtiofs(ctxID, tag, cfg.Mounts[tag]); ret != 0 {
			e.freeCtx(ctxID)
			return nil, model.MountError{Tag: tag}
		}
	}

	// An empty (non-nil) port map still issues the native call with an empty
	// string, matching the library's expected usage.
	if cfg.PortMap != nil {
		if ret := e.api.SetPortMap(ctxID, libkrun.JoinPortMap(cfg.PortMap)); ret != 0 {
			e.freeCtx(ctxID)
			return nil, fmt.Errorf("%w (status %d)", model.ErrPortMapSet, ret)
		}
	}

	// CID allocation never fails, no cleanup path from here on.
	cid := nextCID()

	e.mu.Lock()
	e.handles[cid] = &handle{ctxID: ctxID}
	e.mu.Unlock()

	now := time.Now().UTC()
	m := &model.Machine{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Name:      cfg.Name,
		CID:       cid,
		CtxID:     ctxID,
		CPUs:      cpus,
		MemoryMiB: memoryMiB,
		Status:    model.MachineStatusCreated,
		Config:    cfg,
		CreatedAt: now,
	}

	e.logger.Infof("Created machine %s (cid %d, ctx %d)", m.Name, m.CID, m.CtxID)

	return m, nil
}

// SetExec sets the guest init command. It can be applied at most once per
// machine and only before start.
func (e *Engine) SetExec(ctx context.Context, cid uint32, spec model.ExecSpec) error {
	if e.api == nil {
		return model.ErrUnsupportedPlatform
	}

	h, err := e.handle(cid)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != stateCreated {
		return fmt.Errorf("exec already set or machine started: %w", model.ErrMachineState)
	}

	// Every string is validated uniformly, including argv and env values.
	if err := libkrun.CheckStrings(spec.Path); err != nil {
		return err
	}
	if err := libkrun.CheckStrings(spec.Args...); err != nil {
		return err
	}
	envp := libkrun.EnvStrings(spec.Env)
	if err := libkrun.CheckStrings(envp...); err != nil {
		return err
	}

	if ret := e.api.SetExec(h.ctxID, spec.Path, spec.Args, envp); ret != 0 {
		return fmt.Errorf("%w (status %d)", model.ErrExecSet, ret)
	}

	h.state = stateExecSet
	e.logger.Debugf("Set exec %q on machine cid %d", spec.Path, cid)

	return nil
}

// Start starts the machine and blocks until the guest init process exits,
// returning its raw status code. The meaning of nonzero values is
// guest-defined. A machine can be started at most once.
func (e *Engine) Start(ctx context.Context, cid uint32) (int32, error) {
	if e.api == nil {
		return 0, model.ErrUnsupportedPlatform
	}

	h, err := e.handle(cid)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	if h.state == stateStarted {
		h.mu.Unlock()
		return 0, fmt.Errorf("machine already started: %w", model.ErrMachineState)
	}
	h.state = stateStarted
	h.running = true
	h.mu.Unlock()

	e.logger.Infof("Starting machine cid %d (blocks until guest exits)", cid)
	ret := e.api.StartEnter(h.ctxID)

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	e.logger.Infof("Machine cid %d guest exited with status %d", cid, ret)

	return ret, nil
}

// Free releases the native context. The machine is consumed afterwards: any
// further operation on the CID fails, and the context id must never be
// reused by the caller.
func (e *Engine) Free(ctx context.Context, cid uint32) error {
	if e.api == nil {
		return model.ErrUnsupportedPlatform
	}

	e.mu.Lock()
	h, ok := e.handles[cid]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("machine cid %d already freed or unknown: %w", cid, model.ErrMachineState)
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		e.mu.Unlock()
		return fmt.Errorf("machine cid %d is running: %w", cid, model.ErrMachineState)
	}
	delete(e.handles, cid)
	h.mu.Unlock()
	e.mu.Unlock()

	if ret := e.api.FreeCtx(h.ctxID); ret != 0 {
		return fmt.Errorf("%w (status %d)", model.ErrContextFree, ret)
	}

	e.logger.Debugf("Freed machine cid %d (ctx %d)", cid, h.ctxID)

	return nil
}

// Check performs preflight checks for the libkrun engine.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	var results []model.CheckResult

	if e.api == nil {
		results = append(results, model.CheckResult{
			ID:      "platform_supported",
			Message: "libkrun is not linked on this platform",
			Status:  model.CheckStatusError,
		})
		return results
	}

	results = append(results, model.CheckResult{
		ID:      "platform_supported",
		Message: "libkrun native library is linked",
		Status:  model.CheckStatusOK,
	})

	if e.Available(ctx) {
		results = append(results, model.CheckResult{
			ID:      "library_available",
			Message: "libkrun can create contexts",
			Status:  model.CheckStatusOK,
		})
	} else {
		results = append(results, model.CheckResult{
			ID:      "library_available",
			Message: "libkrun could not create a probe context",
			Status:  model.CheckStatusError,
		})
	}

	results = append(results, model.CheckResult{
		ID:      "library_version",
		Message: e.Version(ctx),
		Status:  model.CheckStatusOK,
	})

	return results
}

// checkConfigStrings applies the embedded NUL byte rule to every string field
// of the configuration.
func (e *Engine) checkConfigStrings(cfg model.MachineConfig) error {
	if err := libkrun.CheckStrings(cfg.RootFS, cfg.Workdir); err != nil {
		return err
	}
	for tag, path := range cfg.Mounts {
		if err := libkrun.CheckStrings(tag, path); err != nil {
			return err
		}
	}
	if err := libkrun.CheckStrings(cfg.PortMap...); err != nil {
		return err
	}
	return nil
}

// handle returns the live handle for a CID.
func (e *Engine) handle(cid uint32) (*handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[cid]
	if !ok {
		return nil, fmt.Errorf("machine cid %d: %w", cid, model.ErrNotFound)
	}
	return h, nil
}

// freeCtx is the best-effort cleanup used on create failure paths and by the
// availability probe. A failure here doesn't replace the primary error, it is
// only logged.
func (e *Engine) freeCtx(ctxID uint32) {
	if ret := e.api.FreeCtx(ctxID); ret != 0 {
		e.logger.Warningf("Could not free context %d during cleanup (status %d)", ctxID, ret)
	}
}
