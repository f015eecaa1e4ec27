package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/krunbox/krunbox/internal/model"
)

// JSONPrinter prints machine information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a machine in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CID       uint32    `json:"cid"`
	ExitCode  *int32    `json:"exit_code"`
	CreatedAt time.Time `json:"created_at"`
}

// statusOutput represents the full machine status output.
type statusOutput struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	CID       uint32            `json:"cid"`
	VCPUs     uint8             `json:"vcpus"`
	MemoryMiB uint32            `json:"memory_mib"`
	RootFS    string            `json:"root_fs"`
	Workdir   string            `json:"workdir,omitempty"`
	Mounts    map[string]string `json:"mounts,omitempty"`
	PortMap   []string          `json:"port_map,omitempty"`
	ExitCode  *int32            `json:"exit_code"`
	CreatedAt time.Time         `json:"created_at"`
	StartedAt *time.Time        `json:"started_at"`
	StoppedAt *time.Time        `json:"stopped_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints machines in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(machines []model.Machine) error {
	items := make([]listItem, len(machines))
	for i, m := range machines {
		items[i] = listItem{
			ID:        m.ID,
			Name:      m.Name,
			Status:    string(m.Status),
			CID:       m.CID,
			ExitCode:  m.ExitCode,
			CreatedAt: m.CreatedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintStatus prints detailed machine status in JSON format.
func (j *JSONPrinter) PrintStatus(m model.Machine) error {
	output := statusOutput{
		ID:        m.ID,
		Name:      m.Name,
		Status:    string(m.Status),
		CID:       m.CID,
		VCPUs:     m.CPUs,
		MemoryMiB: m.MemoryMiB,
		RootFS:    m.Config.RootFS,
		Workdir:   m.Config.Workdir,
		Mounts:    m.Config.Mounts,
		PortMap:   m.Config.PortMap,
		ExitCode:  m.ExitCode,
		CreatedAt: m.CreatedAt.UTC(),
	}

	if m.StartedAt != nil {
		utcTime := m.StartedAt.UTC()
		output.StartedAt = &utcTime
	}

	if m.StoppedAt != nil {
		utcTime := m.StoppedAt.UTC()
		output.StoppedAt = &utcTime
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
