package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultCPUs is the number of vCPUs applied when the config doesn't set one.
	DefaultCPUs = 1
	// DefaultMemoryMiB is the guest RAM applied when the config doesn't set one.
	DefaultMemoryMiB = 512
)

// MachineStatus represents the status of a machine.
type MachineStatus string

const (
	// MachineStatusCreated indicates the machine context is configured but not started.
	MachineStatusCreated MachineStatus = "created"
	// MachineStatusRunning indicates the machine guest is running.
	MachineStatusRunning MachineStatus = "running"
	// MachineStatusStopped indicates the machine guest has exited.
	MachineStatusStopped MachineStatus = "stopped"
	// MachineStatusFailed indicates the machine failed.
	MachineStatusFailed MachineStatus = "failed"
)

// Machine represents a microVM machine backed by a libkrun context.
//
// CtxID is the identifier the native library assigned to the context, valid
// only within the process that created it. CID is a locally allocated,
// monotonically increasing identifier that is never reused within the process.
type Machine struct {
	ID        string
	Name      string
	CID       uint32
	CtxID     uint32
	CPUs      uint8
	MemoryMiB uint32
	Status    MachineStatus
	Config    MachineConfig
	ExitCode  *int32
	CreatedAt time.Time
	StartedAt *time.Time
	StoppedAt *time.Time
}

// MachineConfig is the static configuration for creating a machine.
// It is immutable after creation.
type MachineConfig struct {
	Name string
	// CPUs is the number of vCPUs. 0 means DefaultCPUs.
	CPUs uint8
	// MemoryMiB is the guest RAM in MiB. 0 means DefaultMemoryMiB.
	MemoryMiB uint32
	// RootFS is the host path of the root filesystem for the guest.
	RootFS string
	// Workdir is the working directory inside the guest. Optional.
	Workdir string
	// Mounts maps virtiofs tags to host paths. Tags are unique, order is
	// irrelevant.
	Mounts map[string]string
	// PortMap is an ordered list of "host:guest" port forwarding entries.
	PortMap []string
	// Env are environment variables for the guest process. They are applied
	// when an exec command is set, not during creation.
	Env map[string]string
}

// ExecSpec is the command executed as the guest init process. It can be set
// at most once per machine, before start.
type ExecSpec struct {
	Path string
	Args []string
	Env  map[string]string
}

// Validate validates the machine configuration.
func (c *MachineConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}

	if c.RootFS == "" {
		return fmt.Errorf("rootfs is required: %w", ErrNotValid)
	}

	for _, p := range c.PortMap {
		host, guest, ok := strings.Cut(p, ":")
		if !ok || host == "" || guest == "" {
			return fmt.Errorf("port map entry %q must be host:guest: %w", p, ErrNotValid)
		}
	}

	return nil
}
