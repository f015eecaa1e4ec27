package remove

import (
	"context"
	"errors"
	"fmt"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/machine"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage"
)

// ServiceConfig is the configuration for the remove service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Remove"})
	return nil
}

// Service removes a machine.
type Service struct {
	engine machine.Engine
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new remove service.
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

// Request represents the remove request parameters.
type Request struct {
	// NameOrID is the machine name or ID to remove.
	NameOrID string
}

// Run removes a machine by name or ID.
// Running machines cannot be removed, they have to exit first.
func (s *Service) Run(ctx context.Context, req Request) (*model.Machine, error) {
	s.logger.Debugf("removing machine: %s", req.NameOrID)

	// Lookup machine by name first, then by ID if it looks like a ULID.
	m, err := s.repo.GetMachineByName(ctx, req.NameOrID)
	if errors.Is(err, model.ErrNotFound) && looksLikeULID(req.NameOrID) {
		m, err = s.repo.GetMachine(ctx, req.NameOrID)
	}
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("machine not found: %s: %w", req.NameOrID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get machine: %w", err)
	}

	if m.Status == model.MachineStatusRunning {
		return nil, fmt.Errorf("cannot remove running machine %q: %w", m.Name, model.ErrNotValid)
	}

	// Free the native context if this process still holds one. Records from
	// previous processes have no live context, so a missing handle is fine.
	err = s.engine.Free(ctx, m.CID)
	if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrMachineState) {
		return nil, fmt.Errorf("could not free machine context: %w", err)
	}

	// Delete from repository.
	if err := s.repo.DeleteMachine(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("could not delete machine from repository: %w", err)
	}

	s.logger.Infof("removed machine: %s (ID: %s)", m.Name, m.ID)
	return m, nil
}

// looksLikeULID checks if a string looks like a ULID (26 characters, alphanumeric uppercase).
func looksLikeULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
