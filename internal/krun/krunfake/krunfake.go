// Package krunfake provides a recording in-memory implementation of the
// libkrun call surface for tests. It tracks live contexts so tests can assert
// that no context leaks on any failure path, and detects double frees instead
// of silently succeeding.
package krunfake

import (
	"sync"

	"github.com/krunbox/krunbox/internal/krun"
)

// Call records a single native call with its relevant arguments.
type Call struct {
	Name  string
	CtxID uint32
	Args  []string
}

// API is a fake implementation of krun.API.
//
// The zero value is usable: every call succeeds and context ids are handed
// out sequentially. Failure fields script the result of individual calls.
type API struct {
	// FailCreate makes CreateCtx return krun.InvalidCtx.
	FailCreate bool
	// FailVMConfig makes SetVMConfig return nonzero.
	FailVMConfig bool
	// FailRoot makes SetRoot return nonzero.
	FailRoot bool
	// FailWorkdir makes SetWorkdir return nonzero.
	FailWorkdir bool
	// FailVirtiofsTag makes AddVirtiofs return nonzero for that tag.
	FailVirtiofsTag string
	// FailPortMap makes SetPortMap return nonzero.
	FailPortMap bool
	// FailExec makes SetExec return nonzero.
	FailExec bool
	// FailFree makes FreeCtx return nonzero (the context is still released).
	FailFree bool
	// StartEnterResult is the status code StartEnter returns.
	StartEnterResult int32

	mu          sync.Mutex
	nextCtx     uint32
	live        map[uint32]bool
	calls       []Call
	doubleFrees int
}

var _ krun.API = (*API)(nil)

func (a *API) record(name string, ctxID uint32, args ...string) {
	a.calls = append(a.calls, Call{Name: name, CtxID: ctxID, Args: args})
}

// CreateCtx creates a fake context.
func (a *API) CreateCtx() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailCreate {
		a.record("CreateCtx", krun.InvalidCtx)
		return krun.InvalidCtx
	}

	if a.live == nil {
		a.live = map[uint32]bool{}
	}
	id := a.nextCtx
	a.nextCtx++
	a.live[id] = true
	a.record("CreateCtx", id)
	return id
}

// FreeCtx frees a fake context, counting frees of unknown or already-freed
// contexts as double frees.
func (a *API) FreeCtx(ctxID uint32) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("FreeCtx", ctxID)
	if !a.live[ctxID] {
		a.doubleFrees++
		return -1
	}
	delete(a.live, ctxID)

	if a.FailFree {
		return -1
	}
	return 0
}

// SetVMConfig applies fake VM resources.
func (a *API) SetVMConfig(ctxID uint32, vcpus uint8, ramMiB uint32) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("SetVMConfig", ctxID)
	if a.FailVMConfig {
		return -1
	}
	return 0
}

// SetRoot applies a fake root filesystem.
func (a *API) SetRoot(ctxID uint32, rootPath string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("SetRoot", ctxID, rootPath)
	if a.FailRoot {
		return -1
	}
	return 0
}

// SetWorkdir applies a fake workdir.
func (a *API) SetWorkdir(ctxID uint32, workdirPath string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("SetWorkdir", ctxID, workdirPath)
	if a.FailWorkdir {
		return -1
	}
	return 0
}

// SetExec records the exec path, argv and envp as they would cross the
// boundary.
func (a *API) SetExec(ctxID uint32, execPath string, argv, envp []string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	args := append([]string{execPath}, argv...)
	args = append(args, envp...)
	a.record("SetExec", ctxID, args...)
	if a.FailExec {
		return -1
	}
	return 0
}

// AddVirtiofs records a fake virtiofs mount.
func (a *API) AddVirtiofs(ctxID uint32, tag, path string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("AddVirtiofs", ctxID, tag, path)
	if a.FailVirtiofsTag != "" && a.FailVirtiofsTag == tag {
		return -1
	}
	return 0
}

// SetPortMap records the comma-joined port map string.
func (a *API) SetPortMap(ctxID uint32, portMap string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("SetPortMap", ctxID, portMap)
	if a.FailPortMap {
		return -1
	}
	return 0
}

// StartEnter returns the scripted guest status code immediately.
func (a *API) StartEnter(ctxID uint32) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record("StartEnter", ctxID)
	return a.StartEnterResult
}

// LiveCtxs returns the number of contexts created and not yet freed.
func (a *API) LiveCtxs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// DoubleFrees returns how many times a context was freed more than once (or
// an unknown context was freed).
func (a *API) DoubleFrees() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doubleFrees
}

// Calls returns a copy of all recorded calls in order.
func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call{}, a.calls...)
}

// CallsNamed returns the recorded calls with the given name.
func (a *API) CallsNamed(name string) []Call {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Call
	for _, c := range a.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
