// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync run cannot acquire the per-owner
// lease because another run already holds it.
var ErrSyncInProgress = errors.New("a sync run is already in progress for this owner")

// ErrUnknownEntity is returned for an entity type the generic listing route
// does not recognize.
type ErrUnknownEntity struct {
	Entity string
}

func (e *ErrUnknownEntity) Error() string {
	return fmt.Sprintf("unknown entity type: %q", e.Entity)
}
