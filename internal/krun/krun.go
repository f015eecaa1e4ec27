// Package krun is the raw call surface of the libkrun C library.
//
// The API interface mirrors the subset of libkrun entry points the engine
// uses, with Go types at the boundary. String marshalling into NUL-terminated
// buffers and pointer vectors happens inside the cgo implementation; the
// helpers in this package build and validate the intermediate representations
// so they can be tested without cgo.
package krun

// InvalidCtx is the identifier the library returns when context creation
// fails.
const InvalidCtx = ^uint32(0)

// LibraryVersion is a static descriptive string for the linked library. It is
// informational only, libkrun doesn't expose a version API.
const LibraryVersion = "libkrun (macOS Virtualization.framework)"

// API is the libkrun native call surface.
//
// Every call except CreateCtx returns the library's raw status code, 0 on
// success. Callers must serialize configuration calls for a given context and
// issue them all before StartEnter. StartEnter blocks the calling thread
// until the guest init process exits.
type API interface {
	// CreateCtx creates a context and returns its id, or InvalidCtx on failure.
	CreateCtx() uint32
	// FreeCtx frees a context. The id must not be used again afterwards.
	FreeCtx(ctxID uint32) int32
	// SetVMConfig sets the vCPU count and RAM size of a context.
	SetVMConfig(ctxID uint32, vcpus uint8, ramMiB uint32) int32
	// SetRoot sets the root filesystem path of a context.
	SetRoot(ctxID uint32, rootPath string) int32
	// SetWorkdir sets the working directory of the guest process.
	SetWorkdir(ctxID uint32, workdirPath string) int32
	// SetExec sets the guest init executable, argument vector and environment
	// vector. argv and envp entries are passed as NULL-terminated C arrays.
	SetExec(ctxID uint32, execPath string, argv, envp []string) int32
	// AddVirtiofs adds a virtiofs mount identified by tag for a host path.
	AddVirtiofs(ctxID uint32, tag, path string) int32
	// SetPortMap sets the whole port map from a comma-joined "host:guest" list.
	SetPortMap(ctxID uint32, portMap string) int32
	// StartEnter starts the VM and blocks until the guest init process exits,
	// returning its raw status code.
	StartEnter(ctxID uint32) int32
}
