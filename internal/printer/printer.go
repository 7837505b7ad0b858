package printer

import "github.com/slok/stepbridge/internal/model"

// Printer knows how to print bridge information in different formats.
type Printer interface {
	PrintHistory(records []model.ExecutionRecord) error
	PrintRecord(record model.ExecutionRecord) error
	PrintEnvironment(env model.EnvSnapshot) error
	PrintPlatform(backend string, p model.Platform) error
	PrintMessage(msg string) error
}
