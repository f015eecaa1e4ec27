package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/krunbox/krunbox/internal/model"
)

// manifest is the YAML machine definition accepted by create and run with -f.
type manifest struct {
	Name      string            `yaml:"name"`
	CPUs      uint8             `yaml:"cpus"`
	MemoryMiB uint32            `yaml:"memory_mib"`
	RootFS    string            `yaml:"rootfs"`
	Workdir   string            `yaml:"workdir"`
	Mounts    map[string]string `yaml:"mounts"`
	Ports     []string          `yaml:"ports"`
	Env       map[string]string `yaml:"env"`
	Exec      *manifestExec     `yaml:"exec"`
}

type manifestExec struct {
	Path string            `yaml:"path"`
	Args []string          `yaml:"args"`
	Env  map[string]string `yaml:"env"`
}

// loadManifest reads a machine manifest from a YAML file.
func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read manifest file: %w", err)
	}

	return parseManifest(data)
}

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("could not parse manifest: %w", err)
	}

	return &m, nil
}

// machineConfig converts the manifest into a machine configuration.
func (m *manifest) machineConfig() model.MachineConfig {
	return model.MachineConfig{
		Name:      m.Name,
		CPUs:      m.CPUs,
		MemoryMiB: m.MemoryMiB,
		RootFS:    m.RootFS,
		Workdir:   m.Workdir,
		Mounts:    m.Mounts,
		PortMap:   m.Ports,
		Env:       m.Env,
	}
}

// execSpec converts the manifest exec section, nil when absent.
func (m *manifest) execSpec() *model.ExecSpec {
	if m.Exec == nil {
		return nil
	}

	return &model.ExecSpec{
		Path: m.Exec.Path,
		Args: m.Exec.Args,
		Env:  m.Exec.Env,
	}
}
