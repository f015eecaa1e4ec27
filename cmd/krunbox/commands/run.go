package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	apprun "github.com/krunbox/krunbox/internal/app/run"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/storage/sqlite"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	manifestPath string
	engine       string

	name    string
	rootFS  string
	cpu     uint
	mem     uint
	workdir string
	mounts  map[string]string
	ports   []string
	env     map[string]string

	// Guest command, overrides the manifest exec section when given.
	command []string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{
		rootCmd: rootCmd,
		mounts:  map[string]string{},
		env:     map[string]string{},
	}

	c.Cmd = app.Command("run", "Create a machine and run it until the guest exits.")
	c.Cmd.Flag("file", "Path to a machine manifest file.").Short('f').StringVar(&c.manifestPath)
	c.Cmd.Flag("engine", "Engine type (krun, fake).").Default(engineTypeKrun).EnumVar(&c.engine, engineTypeKrun, engineTypeFake)

	c.Cmd.Flag("name", "Name for the machine.").Short('n').StringVar(&c.name)
	c.Cmd.Flag("rootfs", "Path to the root filesystem directory.").StringVar(&c.rootFS)
	c.Cmd.Flag("cpu", "Number of VCPUs.").UintVar(&c.cpu)
	c.Cmd.Flag("mem", "Memory in MiB.").UintVar(&c.mem)
	c.Cmd.Flag("workdir", "Initial working directory inside the guest.").StringVar(&c.workdir)
	c.Cmd.Flag("mount", "Shared directory as tag=path (repeatable).").StringMapVar(&c.mounts)
	c.Cmd.Flag("port", "Port mapping as host:guest (repeatable).").StringsVar(&c.ports)
	c.Cmd.Flag("env", "Environment variable as KEY=VALUE (repeatable).").StringMapVar(&c.env)

	c.Cmd.Arg("command", "Guest command and arguments to run as init.").StringsVar(&c.command)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg, exec, err := c.machineConfig()
	if err != nil {
		return err
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	// Initialize engine.
	eng, err := newEngine(c.engine, logger)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	// Run service.
	svc, err := apprun.NewService(apprun.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	res, err := svc.Run(ctx, apprun.RunOptions{
		Config: cfg,
		Exec:   exec,
	})
	if err != nil {
		return fmt.Errorf("could not run machine: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Machine %s exited with status %d\n", res.Machine.Name, res.ExitCode)

	return nil
}

// machineConfig resolves the machine configuration and exec command from the
// manifest file and flags. Flags override manifest values when both are given.
func (c RunCommand) machineConfig() (cfg model.MachineConfig, exec *model.ExecSpec, err error) {
	if c.manifestPath != "" {
		m, err := loadManifest(c.manifestPath)
		if err != nil {
			return model.MachineConfig{}, nil, err
		}
		cfg = m.machineConfig()
		exec = m.execSpec()
	}

	if c.name != "" {
		cfg.Name = c.name
	}
	if c.rootFS != "" {
		cfg.RootFS = c.rootFS
	}
	if c.cpu != 0 {
		cfg.CPUs = uint8(c.cpu)
	}
	if c.mem != 0 {
		cfg.MemoryMiB = uint32(c.mem)
	}
	if c.workdir != "" {
		cfg.Workdir = c.workdir
	}
	if len(c.mounts) > 0 {
		cfg.Mounts = c.mounts
	}
	if len(c.ports) > 0 {
		cfg.PortMap = c.ports
	}
	if len(c.env) > 0 {
		cfg.Env = c.env
	}

	if len(c.command) > 0 {
		exec = &model.ExecSpec{
			Path: c.command[0],
			Args: c.command,
		}
	}

	return cfg, exec, nil
}
