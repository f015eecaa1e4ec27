package storage

import (
	"context"

	"github.com/krunbox/krunbox/internal/model"
)

// Repository is the interface for machine persistence.
//
// Machine records outlive the native contexts they describe: a record from a
// previous process still lists and inspects fine, but its context is gone.
type Repository interface {
	CreateMachine(ctx context.Context, m model.Machine) error
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	GetMachineByName(ctx context.Context, name string) (*model.Machine, error)
	ListMachines(ctx context.Context) ([]model.Machine, error)
	UpdateMachine(ctx context.Context, m model.Machine) error
	DeleteMachine(ctx context.Context, id string) error
}
