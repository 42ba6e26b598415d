package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
)

// ErrorCode categorizes guard refusals.
type ErrorCode string

const (
	// ErrCodeCRSMismatch indicates inputs in different CRSs with no target.
	ErrCodeCRSMismatch ErrorCode = "CRS_MISMATCH"

	// ErrCodeUnsafeUnits indicates a metric operation in an angular CRS.
	ErrCodeUnsafeUnits ErrorCode = "UNSAFE_UNITS"

	// ErrCodeMissingCRS indicates a dataset without a CRS.
	ErrCodeMissingCRS ErrorCode = "MISSING_CRS"
)

// CRSMismatchError reports inputs that disagree on CRS.
// The guard never guesses which side is right.
type CRSMismatchError struct {
	Operation ir.OperationKind
	// Inputs lists every dataset with the CRS it arrived in.
	Inputs []ir.CRSBinding
}

func (e *CRSMismatchError) Error() string {
	parts := make([]string, len(e.Inputs))
	for i, in := range e.Inputs {
		parts[i] = fmt.Sprintf("%s=%s", in.Dataset, in.CRS)
	}
	return fmt.Sprintf("%s: %s inputs have different CRSs (%s); pass a target CRS to reproject explicitly",
		ErrCodeCRSMismatch, e.Operation, strings.Join(parts, ", "))
}

// Code returns ErrCodeCRSMismatch.
func (e *CRSMismatchError) Code() ErrorCode { return ErrCodeCRSMismatch }

// CRSs returns the distinct conflicting identifiers in input order.
func (e *CRSMismatchError) CRSs() []string {
	return ir.Decision{Inputs: e.Inputs}.InputCRS()
}

// UnsafeUnitsError reports a metric operation in a geographic or
// degree-based CRS.
type UnsafeUnitsError struct {
	Operation ir.OperationKind
	CRS       crs.Reference
}

func (e *UnsafeUnitsError) Error() string {
	return fmt.Sprintf("%s: %s measures distance but %s uses %s units; reproject to a projected CRS first",
		ErrCodeUnsafeUnits, e.Operation, e.CRS.ID, e.CRS.Unit)
}

// Code returns ErrCodeUnsafeUnits.
func (e *UnsafeUnitsError) Code() ErrorCode { return ErrCodeUnsafeUnits }

// MissingCRSError reports a dataset with no CRS.
type MissingCRSError struct {
	Operation ir.OperationKind
	Dataset   string
}

func (e *MissingCRSError) Error() string {
	return fmt.Sprintf("%s: %s input %q has no CRS", ErrCodeMissingCRS, e.Operation, e.Dataset)
}

// Code returns ErrCodeMissingCRS.
func (e *MissingCRSError) Code() ErrorCode { return ErrCodeMissingCRS }

// IsCRSMismatch returns true if the error is a CRS mismatch.
// Uses errors.As to handle wrapped errors.
func IsCRSMismatch(err error) bool {
	var e *CRSMismatchError
	return errors.As(err, &e)
}

// IsUnsafeUnits returns true if the error is an unsafe units refusal.
// Uses errors.As to handle wrapped errors.
func IsUnsafeUnits(err error) bool {
	var e *UnsafeUnitsError
	return errors.As(err, &e)
}

// IsMissingCRS returns true if the error is a missing CRS refusal.
// Uses errors.As to handle wrapped errors.
func IsMissingCRS(err error) bool {
	var e *MissingCRSError
	return errors.As(err, &e)
}
