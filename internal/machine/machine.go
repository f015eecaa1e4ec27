package machine

import (
	"context"

	"github.com/krunbox/krunbox/internal/model"
)

// Engine is the interface for machine lifecycle management.
//
// Machines are identified by their CID. Per machine the valid call sequence
// is Create, optionally one SetExec, at most one Start and exactly one Free;
// engines reject anything else. Start blocks the calling goroutine for the
// whole guest runtime, so callers should dispatch it to a dedicated
// goroutine. Different machines are independent and can be managed
// concurrently.
type Engine interface {
	// Available reports whether the engine can create machines on this host.
	// It never leaves resources allocated.
	Available(ctx context.Context) bool

	// Version returns a static descriptive string of the backing runtime.
	Version(ctx context.Context) string

	// Check performs preflight checks and returns the results.
	Check(ctx context.Context) []model.CheckResult

	Create(ctx context.Context, cfg model.MachineConfig) (*model.Machine, error)
	SetExec(ctx context.Context, cid uint32, spec model.ExecSpec) error
	Start(ctx context.Context, cid uint32) (int32, error)
	Free(ctx context.Context, cid uint32) error
}
