package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/machine"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage"
)

// ServiceConfig is the configuration for the run service.
type ServiceConfig struct {
	Engine     machine.Engine
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Run"})
	return nil
}

// Service creates, starts and reaps a machine in one shot.
type Service struct {
	engine machine.Engine
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// RunOptions are the options for running a machine.
type RunOptions struct {
	Config model.MachineConfig
	// Exec is the optional guest init command. The config's Env entries are
	// applied through it; explicit exec env entries win on conflict.
	Exec *model.ExecSpec
}

// Result is the outcome of a completed machine run.
type Result struct {
	Machine  model.Machine
	ExitCode int32
}

// Run creates a machine, optionally sets its exec command and starts it.
//
// Start blocks the calling goroutine until the guest init process exits, so
// callers should run this service from a dedicated goroutine when they have
// other work to do. The native layer exposes no way to interrupt a started
// guest from the host side; cancellation has to come from inside the guest.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	// 1. Validate config.
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 2. Check name uniqueness.
	_, err := s.repo.GetMachineByName(ctx, opts.Config.Name)
	if err == nil {
		return nil, fmt.Errorf("machine with name %q already exists: %w", opts.Config.Name, model.ErrAlreadyExists)
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not check name uniqueness: %w", err)
	}

	// 3. Create via engine.
	m, err := s.engine.Create(ctx, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("could not create machine: %w", err)
	}

	// 4. Set exec command before start, merging the config env under it.
	if opts.Exec != nil {
		spec := *opts.Exec
		spec.Env = mergeEnv(opts.Config.Env, opts.Exec.Env)
		if err := s.engine.SetExec(ctx, m.CID, spec); err != nil {
			s.free(ctx, m.CID)
			return nil, fmt.Errorf("could not set exec command: %w", err)
		}
	}

	// 5. Persist as running.
	now := time.Now().UTC()
	m.Status = model.MachineStatusRunning
	m.StartedAt = &now
	if err := s.repo.CreateMachine(ctx, *m); err != nil {
		s.free(ctx, m.CID)
		return nil, fmt.Errorf("could not save machine: %w", err)
	}

	s.logger.Infof("Starting machine %s (cid %d), blocking until the guest exits", m.Name, m.CID)

	// 6. Start and block until the guest exits.
	code, err := s.engine.Start(ctx, m.CID)
	stopped := time.Now().UTC()
	m.StoppedAt = &stopped
	if err != nil {
		m.Status = model.MachineStatusFailed
		s.persistFinal(ctx, *m)
		s.free(ctx, m.CID)
		return nil, fmt.Errorf("could not start machine: %w", err)
	}

	// 7. Record the outcome and release the context.
	m.Status = model.MachineStatusStopped
	m.ExitCode = &code
	s.persistFinal(ctx, *m)
	s.free(ctx, m.CID)

	s.logger.Infof("Machine %s exited with status %d", m.Name, code)

	return &Result{Machine: *m, ExitCode: code}, nil
}

// persistFinal updates the machine record with its final state. Failing to
// record the outcome doesn't fail the run itself.
func (s *Service) persistFinal(ctx context.Context, m model.Machine) {
	if err := s.repo.UpdateMachine(ctx, m); err != nil {
		s.logger.Warningf("Could not update machine %s record: %s", m.ID, err)
	}
}

// free releases the native context best-effort.
func (s *Service) free(ctx context.Context, cid uint32) {
	if err := s.engine.Free(ctx, cid); err != nil {
		s.logger.Warningf("Could not free machine cid %d: %s", cid, err)
	}
}

func mergeEnv(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}

	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
