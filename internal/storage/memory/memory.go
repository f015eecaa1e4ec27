package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	machines map[string]model.Machine
	mu       sync.RWMutex
	logger   log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		machines: map[string]model.Machine{},
		logger:   cfg.Logger,
	}, nil
}

// CreateMachine creates a new machine in the repository.
func (r *Repository) CreateMachine(ctx context.Context, m model.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.machines[m.ID]; ok {
		return fmt.Errorf("machine with id %s: %w", m.ID, model.ErrAlreadyExists)
	}

	for _, existing := range r.machines {
		if existing.Name == m.Name {
			return fmt.Errorf("machine with name %s: %w", m.Name, model.ErrAlreadyExists)
		}
	}

	r.machines[m.ID] = m
	r.logger.Debugf("Created machine in repository: %s", m.ID)

	return nil
}

// GetMachine retrieves a machine by ID.
func (r *Repository) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[id]
	if !ok {
		return nil, fmt.Errorf("machine %s: %w", id, model.ErrNotFound)
	}

	return &m, nil
}

// GetMachineByName retrieves a machine by name.
func (r *Repository) GetMachineByName(ctx context.Context, name string) (*model.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.machines {
		if m.Name == name {
			return &m, nil
		}
	}

	return nil, fmt.Errorf("machine with name %s: %w", name, model.ErrNotFound)
}

// ListMachines returns all machines sorted by creation time, newest first.
func (r *Repository) ListMachines(ctx context.Context) ([]model.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	machines := make([]model.Machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}

	sort.Slice(machines, func(i, j int) bool {
		return machines[i].CreatedAt.After(machines[j].CreatedAt)
	})

	return machines, nil
}

// UpdateMachine updates an existing machine.
func (r *Repository) UpdateMachine(ctx context.Context, m model.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.machines[m.ID]; !ok {
		return fmt.Errorf("machine %s: %w", m.ID, model.ErrNotFound)
	}

	r.machines[m.ID] = m
	r.logger.Debugf("Updated machine in repository: %s", m.ID)

	return nil
}

// DeleteMachine deletes a machine by ID.
func (r *Repository) DeleteMachine(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.machines[id]; !ok {
		return fmt.Errorf("machine %s: %w", id, model.ErrNotFound)
	}

	delete(r.machines, id)
	r.logger.Debugf("Deleted machine from repository: %s", id)

	return nil
}
