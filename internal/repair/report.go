package repair

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/geosafe/internal/ir"
)

// Report summarizes one validation pass over a dataset.
type Report struct {
	Dataset  string `json:"dataset"`
	Total    int    `json:"total"`
	Valid    int    `json:"valid"`
	Invalid  int    `json:"invalid"`
	Null     int    `json:"null"`
	Empty    int    `json:"empty"`
	Repaired int    `json:"repaired"`
	Excluded int    `json:"excluded"`

	// Issues counts invalid records by problem description.
	Issues map[string]int `json:"issues,omitempty"`

	// Notes lists every repaired or excluded record by index.
	Notes    []ir.RepairNote `json:"notes,omitempty"`
	Strategy []string        `json:"strategy"`

	// Decision is the validator decision recorded for the pass. It is unset
	// for Inspect.
	Decision ir.Decision `json:"-"`
}

// InvalidPercent returns the share of invalid records, 0 for an empty
// dataset.
func (r Report) InvalidPercent() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Invalid) / float64(r.Total)
}

// Clean reports whether every record was valid on input.
func (r Report) Clean() bool {
	return r.Invalid == 0
}

// Note returns the note for a record index.
func (r Report) Note(index int) (ir.RepairNote, bool) {
	for _, n := range r.Notes {
		if n.Index == index {
			return n, true
		}
	}
	return ir.RepairNote{}, false
}

// InvalidGeometryError is returned in strict mode when a dataset contains
// invalid records.
type InvalidGeometryError struct {
	Dataset string
	// Problems maps record index to the problem found.
	Problems map[int]string
	Indexes  []int
}

func (e *InvalidGeometryError) Error() string {
	shown := e.Indexes
	if len(shown) > 5 {
		shown = shown[:5]
	}
	parts := make([]string, len(shown))
	for i, idx := range shown {
		parts[i] = fmt.Sprintf("%d: %s", idx, e.Problems[idx])
	}
	more := ""
	if len(e.Indexes) > len(shown) {
		more = fmt.Sprintf(" and %d more", len(e.Indexes)-len(shown))
	}
	return fmt.Sprintf("INVALID_GEOMETRY: %s has %d invalid record(s) [%s]%s",
		e.Dataset, len(e.Indexes), strings.Join(parts, "; "), more)
}

// IsInvalidGeometry returns true if the error is a strict-mode refusal.
// Uses errors.As to handle wrapped errors.
func IsInvalidGeometry(err error) bool {
	var e *InvalidGeometryError
	return errors.As(err, &e)
}
