package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/krunbox/krunbox/internal/app/remove"
	"github.com/krunbox/krunbox/internal/storage/sqlite"
)

type RemoveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	nameOrID string
	engine   string
}

// NewRemoveCommand returns the rm command.
func NewRemoveCommand(rootCmd *RootCommand, app *kingpin.Application) *RemoveCommand {
	c := &RemoveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("rm", "Remove a machine.")
	c.Cmd.Arg("machine", "Machine name or ID.").Required().StringVar(&c.nameOrID)
	c.Cmd.Flag("engine", "Engine type (krun, fake).").Default(engineTypeKrun).EnumVar(&c.engine, engineTypeKrun, engineTypeFake)

	return c
}

func (c RemoveCommand) Name() string { return c.Cmd.FullCommand() }

func (c RemoveCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	eng, err := newEngine(c.engine, logger)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	svc, err := remove.NewService(remove.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	m, err := svc.Run(ctx, remove.Request{NameOrID: c.nameOrID})
	if err != nil {
		return fmt.Errorf("could not remove machine: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Machine removed: %s\n", m.Name)

	return nil
}
