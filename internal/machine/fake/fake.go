package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
)

// EngineConfig is the configuration for the fake engine.
type EngineConfig struct {
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "machine.Fake"})
	return nil
}

type fakeState int

const (
	stateCreated fakeState = iota
	stateExecSet
	stateStarted
)

type fakeMachine struct {
	machine model.Machine
	state   fakeState
}

// Engine is a fake implementation of the machine.Engine interface. It
// simulates the machine lifecycle without touching the native library, with
// the same state rules: one optional exec, at most one start, exactly one
// free.
type Engine struct {
	machines map[uint32]*fakeMachine
	nextCID  uint32
	mu       sync.Mutex
	logger   log.Logger
}

// NewEngine creates a new fake engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		machines: map[uint32]*fakeMachine{},
		nextCID:  3,
		logger:   cfg.Logger,
	}, nil
}

// Available always reports true.
func (e *Engine) Available(ctx context.Context) bool { return true }

// Version returns a fake runtime description.
func (e *Engine) Version(ctx context.Context) string { return "fake (no native library)" }

// Check performs preflight checks for the fake engine. It always passes.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{{
		ID:      "fake_engine",
		Message: "fake engine is always available",
		Status:  model.CheckStatusOK,
	}}
}

// Create creates a fake machine.
func (e *Engine) Create(ctx context.Context, cfg model.MachineConfig) (*model.Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cpus := cfg.CPUs
	if cpus == 0 {
		cpus = model.DefaultCPUs
	}
	memoryMiB := cfg.MemoryMiB
	if memoryMiB == 0 {
		memoryMiB = model.DefaultMemoryMiB
	}

	cid := e.nextCID
	e.nextCID++

	now := time.Now().UTC()
	m := model.Machine{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Name:      cfg.Name,
		CID:       cid,
		CtxID:     cid, // No native context, reuse the cid.
		CPUs:      cpus,
		MemoryMiB: memoryMiB,
		Status:    model.MachineStatusCreated,
		Config:    cfg,
		CreatedAt: now,
	}

	e.machines[cid] = &fakeMachine{machine: m}
	e.logger.Infof("Created fake machine: %s (cid %d)", m.Name, cid)

	return &m, nil
}

// SetExec records the exec spec on a fake machine.
func (e *Engine) SetExec(ctx context.Context, cid uint32, spec model.ExecSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fm, ok := e.machines[cid]
	if !ok {
		return fmt.Errorf("machine cid %d: %w", cid, model.ErrNotFound)
	}
	if fm.state != stateCreated {
		return fmt.Errorf("exec already set or machine started: %w", model.ErrMachineState)
	}

	fm.state = stateExecSet
	e.logger.Debugf("Set exec %q on fake machine cid %d", spec.Path, cid)

	return nil
}

// Start simulates a guest run that exits immediately with status 0.
func (e *Engine) Start(ctx context.Context, cid uint32) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fm, ok := e.machines[cid]
	if !ok {
		return 0, fmt.Errorf("machine cid %d: %w", cid, model.ErrNotFound)
	}
	if fm.state == stateStarted {
		return 0, fmt.Errorf("machine already started: %w", model.ErrMachineState)
	}

	fm.state = stateStarted
	e.logger.Infof("Started fake machine cid %d", cid)

	return 0, nil
}

// Free removes a fake machine.
func (e *Engine) Free(ctx context.Context, cid uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.machines[cid]; !ok {
		return fmt.Errorf("machine cid %d already freed or unknown: %w", cid, model.ErrMachineState)
	}

	delete(e.machines, cid)
	e.logger.Debugf("Freed fake machine cid %d", cid)

	return nil
}
