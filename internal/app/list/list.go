package list

import (
	"context"
	"fmt"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service lists machines with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show machines with this status.
	StatusFilter *model.MachineStatus
}

// Run lists all machines, optionally filtered by status.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Machine, error) {
	s.logger.Debugf("listing machines with filter: %v", req.StatusFilter)

	machines, err := s.repo.ListMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list machines: %w", err)
	}

	if req.StatusFilter != nil {
		filtered := make([]model.Machine, 0, len(machines))
		for _, m := range machines {
			if m.Status == *req.StatusFilter {
				filtered = append(filtered, m)
			}
		}
		machines = filtered
	}

	s.logger.Debugf("found %d machines", len(machines))
	return machines, nil
}
