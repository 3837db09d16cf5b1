package pipeline

import (
	"fmt"
	"strings"
)

// ErrMissingCapability aborts a run before any RunRecord is written: the
// processor reported that required capabilities (skills, binaries, vault)
// are not installed.
type ErrMissingCapability struct {
	Names []string
}

func (e *ErrMissingCapability) Error() string {
	return fmt.Sprintf("missing required capabilities: %s", strings.Join(e.Names, ", "))
}
