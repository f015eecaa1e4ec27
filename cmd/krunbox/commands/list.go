package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/krunbox/krunbox/internal/app/list"
	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/printer"
	"github.com/krunbox/krunbox/internal/storage/sqlite"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all machines.")
	c.Cmd.Flag("status", "Filter by status (created, running, stopped, failed).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.MachineStatus
	if c.statusFilter != "" {
		status := model.MachineStatus(strings.ToLower(c.statusFilter))
		switch status {
		case model.MachineStatusCreated, model.MachineStatusRunning, model.MachineStatusStopped, model.MachineStatusFailed:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: created, running, stopped, failed)", c.statusFilter)
		}
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	machines, err := svc.Run(ctx, list.Request{
		StatusFilter: statusFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list machines: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintList(machines); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
