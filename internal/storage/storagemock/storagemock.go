// Package storagemock contains a mock implementation of the
// storage.Repository interface for tests.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage"
)

// MockRepository is a mock implementation of storage.Repository.
type MockRepository struct {
	mock.Mock
}

var _ storage.Repository = (*MockRepository)(nil)

// NewMockRepository creates a new MockRepository that asserts its
// expectations when the test finishes.
func NewMockRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRepository {
	m := &MockRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRepository) CreateMachine(ctx context.Context, mc model.Machine) error {
	args := m.Called(ctx, mc)
	return args.Error(0)
}

func (m *MockRepository) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Machine)
	return res, args.Error(1)
}

func (m *MockRepository) GetMachineByName(ctx context.Context, name string) (*model.Machine, error) {
	args := m.Called(ctx, name)
	res, _ := args.Get(0).(*model.Machine)
	return res, args.Error(1)
}

func (m *MockRepository) ListMachines(ctx context.Context) ([]model.Machine, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]model.Machine)
	return res, args.Error(1)
}

func (m *MockRepository) UpdateMachine(ctx context.Context, mc model.Machine) error {
	args := m.Called(ctx, mc)
	return args.Error(0)
}

func (m *MockRepository) DeleteMachine(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
