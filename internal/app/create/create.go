package create

import (
	"context"
	"errors"
	"fmt"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/machine"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage"
)

// ServiceConfig is the configuration for the create service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Create"})
	return nil
}

// Service handles machine creation business logic.
type Service struct {
	engine machine.Engine
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new create service.
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

// CreateOptions are the options for creating a machine.
type CreateOptions struct {
	Config model.MachineConfig
}

// Create creates a new machine context and persists its record.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (*model.Machine, error) {
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

	// 4. Save to repository. On failure free the context so it doesn't leak.
	if err := s.repo.CreateMachine(ctx, *m); err != nil {
		if freeErr := s.engine.Free(ctx, m.CID); freeErr != nil {
			s.logger.Warningf("Could not free machine cid %d during cleanup: %s", m.CID, freeErr)
		}
		return nil, fmt.Errorf("could not save machine: %w", err)
	}

	s.logger.Infof("Created machine: %s (cid %d)", m.Name, m.CID)

	return m, nil
}
