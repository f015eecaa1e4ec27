//go:build !darwin || !cgo

package krun

// Supported returns whether the libkrun native library is linked on this
// platform.
func Supported() bool { return false }

// NewNative returns a stub that fails every call. It exists so the package
// compiles everywhere; callers must gate on Supported() and never reach it.
func NewNative() API { return unsupported{} }

type unsupported struct{}

func (unsupported) CreateCtx() uint32                          { return InvalidCtx }
func (unsupported) FreeCtx(uint32) int32                       { return -1 }
func (unsupported) SetVMConfig(uint32, uint8, uint32) int32    { return -1 }
func (unsupported) SetRoot(uint32, string) int32               { return -1 }
func (unsupported) SetWorkdir(uint32, string) int32            { return -1 }
func (unsupported) SetExec(uint32, string, []string, []string) int32 { return -1 }
func (unsupported) AddVirtiofs(uint32, string, string) int32   { return -1 }
func (unsupported) SetPortMap(uint32, string) int32            { return -1 }
func (unsupported) StartEnter(uint32) int32                    { return -1 }
