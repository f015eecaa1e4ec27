package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/krunbox/krunbox/internal/model"
)

// TablePrinter prints machine information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints machines in a table format.
func (t *TablePrinter) PrintList(machines []model.Machine) error {
	if len(machines) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "NAME\tSTATUS\tCID\tEXIT\tCREATED")

	// Print rows
	for _, m := range machines {
		exit := "-"
		if m.ExitCode != nil {
			exit = fmt.Sprintf("%d", *m.ExitCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", m.Name, m.Status, m.CID, exit, TimeAgo(m.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed machine status.
func (t *TablePrinter) PrintStatus(m model.Machine) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", m.Name)
	fmt.Fprintf(t.writer, "ID:         %s\n", m.ID)
	fmt.Fprintf(t.writer, "Status:     %s\n", m.Status)
	fmt.Fprintf(t.writer, "CID:        %d\n", m.CID)
	fmt.Fprintf(t.writer, "VCPUs:      %d\n", m.CPUs)
	fmt.Fprintf(t.writer, "Memory:     %d MiB\n", m.MemoryMiB)
	fmt.Fprintf(t.writer, "RootFS:     %s\n", m.Config.RootFS)

	if m.Config.Workdir != "" {
		fmt.Fprintf(t.writer, "Workdir:    %s\n", m.Config.Workdir)
	}

	if len(m.Config.Mounts) > 0 {
		tags := make([]string, 0, len(m.Config.Mounts))
		for tag := range m.Config.Mounts {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for i, tag := range tags {
			label := "            "
			if i == 0 {
				label = "Mounts:     "
			}
			fmt.Fprintf(t.writer, "%s%s -> %s\n", label, tag, m.Config.Mounts[tag])
		}
	}

	if m.Config.PortMap != nil {
		fmt.Fprintf(t.writer, "Ports:      %s\n", strings.Join(m.Config.PortMap, ", "))
	}

	if m.ExitCode != nil {
		fmt.Fprintf(t.writer, "Exit code:  %d\n", *m.ExitCode)
	}

	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(m.CreatedAt))

	if m.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*m.StartedAt))
	}

	if m.StoppedAt != nil {
		fmt.Fprintf(t.writer, "Stopped:    %s\n", FormatTimestamp(*m.StoppedAt))
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
