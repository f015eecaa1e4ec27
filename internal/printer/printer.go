package printer

import "github.com/krunbox/krunbox/internal/model"

// Printer knows how to print machine information in different formats.
type Printer interface {
	PrintList(machines []model.Machine) error
	PrintStatus(machine model.Machine) error
	PrintMessage(msg string) error
}
