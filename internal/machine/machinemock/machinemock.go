// Package machinemock contains a mock implementation of the machine.Engine
// interface for tests.
package machinemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/krunbox/krunbox/internal/machine"
	"github.com/krunbox/krunbox/internal/model"
)

// MockEngine is a mock implementation of machine.Engine.
type MockEngine struct {
	mock.Mock
}

var _ machine.Engine = (*MockEngine)(nil)

// NewMockEngine creates a new MockEngine that asserts its expectations when
// the test finishes.
func NewMockEngine(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEngine {
	m := &MockEngine{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockEngine) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockEngine) Version(ctx context.Context) string {
	args := m.Called(ctx)
	return args.String(0)
}

func (m *MockEngine) Check(ctx context.Context) []model.CheckResult {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]model.CheckResult)
	return res
}

func (m *MockEngine) Create(ctx context.Context, cfg model.MachineConfig) (*model.Machine, error) {
	args := m.Called(ctx, cfg)
	res, _ := args.Get(0).(*model.Machine)
	return res, args.Error(1)
}

func (m *MockEngine) SetExec(ctx context.Context, cid uint32, spec model.ExecSpec) error {
	args := m.Called(ctx, cid, spec)
	return args.Error(0)
}

func (m *MockEngine) Start(ctx context.Context, cid uint32) (int32, error) {
	args := m.Called(ctx, cid)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockEngine) Free(ctx context.Context, cid uint32) error {
	args := m.Called(ctx, cid)
	return args.Error(0)
}
