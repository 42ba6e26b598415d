package crs

import (
	"errors"
	"fmt"
)

// ErrUnknownCRS is returned when an identifier cannot be resolved.
var ErrUnknownCRS = errors.New("unknown CRS")

// ProjectionError reports a failure of the projection engine.
// Projection failures are never retried.
type ProjectionError struct {
	// Dataset is the dataset being reprojected, if known.
	Dataset string

	From string
	To   string

	// Index is the record index that failed, or -1 for whole-dataset
	// failures.
	Index int

	Err error
}

func (e *ProjectionError) Error() string {
	where := ""
	if e.Dataset != "" {
		where = fmt.Sprintf(" (dataset=%s", e.Dataset)
		if e.Index >= 0 {
			where += fmt.Sprintf(", record=%d", e.Index)
		}
		where += ")"
	}
	return fmt.Sprintf("PROJECTION_FAILED: %s -> %s%s: %v", e.From, e.To, where, e.Err)
}

func (e *ProjectionError) Unwrap() error {
	return e.Err
}

// IsProjectionError returns true if the error is a projection failure.
// Uses errors.As to handle wrapped errors.
func IsProjectionError(err error) bool {
	var pe *ProjectionError
	return errors.As(err, &pe)
}
