package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrUnsupportedPlatform is returned when libkrun is not available on this host.
	ErrUnsupportedPlatform = errors.New("libkrun is not supported on this platform")
	// ErrContextCreation is returned when the native library can't allocate a context.
	ErrContextCreation = errors.New("could not create libkrun context")
	// ErrVMConfig is returned when setting vCPUs/RAM on a context fails.
	ErrVMConfig = errors.New("could not set VM config")
	// ErrInvalidString is returned when a caller-supplied string contains an
	// embedded NUL byte and can't cross the C boundary.
	ErrInvalidString = errors.New("string contains an embedded NUL byte")
	// ErrRootSet is returned when setting the root filesystem fails.
	ErrRootSet = errors.New("could not set root filesystem")
	// ErrWorkdirSet is returned when setting the working directory fails.
	ErrWorkdirSet = errors.New("could not set workdir")
	// ErrMount is returned when adding a virtiofs mount fails. The concrete
	// error is a MountError carrying the failed tag.
	ErrMount = errors.New("could not add virtiofs mount")
	// ErrPortMapSet is returned when setting the port map fails.
	ErrPortMapSet = errors.New("could not set port map")
	// ErrExecSet is returned when setting the exec command fails.
	ErrExecSet = errors.New("could not set exec command")
	// ErrContextFree is returned when freeing a context fails.
	ErrContextFree = errors.New("could not free libkrun context")
	// ErrMachineState is returned when an operation is not allowed in the
	// machine's current lifecycle state (e.g. double free, second start).
	ErrMachineState = errors.New("operation not allowed in current machine state")
)

// MountError reports a failed virtiofs mount, identifying the mount by tag.
type MountError struct {
	Tag string
}

func (e MountError) Error() string {
	return fmt.Sprintf("could not add virtiofs mount %q", e.Tag)
}

// Unwrap makes MountError match ErrMount with errors.Is.
func (e MountError) Unwrap() error { return ErrMount }
