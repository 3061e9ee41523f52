package stores

import (
	"errors"
	"time"

	"github.com/openfroyo/planforge/pkg/engine"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit bounds ListRuns when the filter sets no limit.
const DefaultListLimit = 50

// RunFilter selects runs for ListRuns. Zero fields match everything.
type RunFilter struct {
	Engine string
	Mode   engine.OperationMode
	Status string

	// Since keeps runs started at or after the given time.
	Since time.Time

	Limit int
}
