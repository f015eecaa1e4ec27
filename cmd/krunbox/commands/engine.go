package commands

import (
	"fmt"

	"github.com/krunbox/krunbox/internal/log"
	"github.com/krunbox/krunbox/internal/machine"
	"github.com/krunbox/krunbox/internal/machine/fake"
	machinekrun "github.com/krunbox/krunbox/internal/machine/krun"
)

const (
	engineTypeKrun = "krun"
	engineTypeFake = "fake"
)

// newEngine creates a machine engine by type.
func newEngine(engineType string, logger log.Logger) (machine.Engine, error) {
	switch engineType {
	case engineTypeKrun:
		return machinekrun.NewEngine(machinekrun.EngineConfig{
			Logger: logger,
		})
	case engineTypeFake:
		return fake.NewEngine(fake.EngineConfig{
			Logger: logger,
		})
	}

	return nil, fmt.Errorf("unknown engine type: %s", engineType)
}
