package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krunbox/krunbox/internal/model"
	"github.com/krunbox/krunbox/internal/printer"
)

func machineFixture() model.Machine {
	createdAt := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	code := int32(42)
	return model.Machine{
		ID:        "01234567890ABCDEFGHIJKLMNOP",
		Name:      "my-machine",
		CID:       3,
		CPUs:      2,
		MemoryMiB: 1024,
		Status:    model.MachineStatusStopped,
		ExitCode:  &code,
		CreatedAt: createdAt,
		Config: model.MachineConfig{
			Name:    "my-machine",
			RootFS:  "/images/rootfs",
			Workdir: "/work",
			Mounts:  map[string]string{"data": "/host/data", "cache": "/host/cache"},
			PortMap: []string{"8080:80", "2222:22"},
		},
	}
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintStatus(machineFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Name:       my-machine")
	assert.Contains(t, out, "CID:        3")
	assert.Contains(t, out, "RootFS:     /images/rootfs")
	assert.Contains(t, out, "Workdir:    /work")
	assert.Contains(t, out, "cache -> /host/cache")
	assert.Contains(t, out, "data -> /host/data")
	assert.Contains(t, out, "Ports:      8080:80, 2222:22")
	assert.Contains(t, out, "Exit code:  42")
}

func TestTablePrinterPrintList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintList([]model.Machine{machineFixture()})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "CID")
	assert.Contains(t, out, "my-machine")
	assert.Contains(t, out, "stopped")
}

func TestTablePrinterPrintListEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintList(nil)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestJSONPrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintStatus(machineFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "my-machine"`)
	assert.Contains(t, out, `"cid": 3`)
	assert.Contains(t, out, `"root_fs": "/images/rootfs"`)
	assert.Contains(t, out, `"exit_code": 42`)
}

func TestJSONPrinterPrintList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintList([]model.Machine{machineFixture()})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "my-machine"`)
	assert.Contains(t, out, `"status": "stopped"`)
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
