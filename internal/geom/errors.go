package geom

import (
	"errors"
	"fmt"
)

// EngineError wraps a geometry engine failure with the operation and the
// record it failed on. Engine failures are never retried.
type EngineError struct {
	Operation string
	Dataset   string
	// Index is the record index, or -1 when the failure is not tied to
	// one record.
	Index int
	Err   error
}

func (e *EngineError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("GEOMETRY_ENGINE: %s failed on %s record %d: %v", e.Operation, e.Dataset, e.Index, e.Err)
	}
	return fmt.Sprintf("GEOMETRY_ENGINE: %s failed on %s: %v", e.Operation, e.Dataset, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsEngineError returns true if the error is a geometry engine failure.
// Uses errors.As to handle wrapped errors.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}
