package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type VersionCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	appVersion string
	engine     string
}

// NewVersionCommand returns the version command.
func NewVersionCommand(rootCmd *RootCommand, app *kingpin.Application, appVersion string) *VersionCommand {
	c := &VersionCommand{rootCmd: rootCmd, appVersion: appVersion}

	c.Cmd = app.Command("version", "Show application and runtime library versions.")
	c.Cmd.Flag("engine", "Engine to report (krun, fake).").Default(engineTypeKrun).EnumVar(&c.engine, engineTypeKrun, engineTypeFake)

	return c
}

func (c VersionCommand) Name() string { return c.Cmd.FullCommand() }

func (c VersionCommand) Run(ctx context.Context) error {
	fmt.Fprintf(c.rootCmd.Stdout, "krunbox %s\n", c.appVersion)

	eng, err := newEngine(c.engine, c.rootCmd.Logger)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "runtime: %s\n", eng.Version(ctx))

	return nil
}
