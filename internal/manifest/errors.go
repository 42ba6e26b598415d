package manifest

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes for manifest problems.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUnsupported = "E002" // Unknown manifest format
	ErrCodeParse       = "E004" // YAML or CUE syntax error
	ErrCodeNotFound    = "E005" // Manifest file not found
	ErrCodeSchema      = "E006" // Document does not satisfy #Pipeline

	ErrCodeInvalidField   = "E201" // A field fails its constraint
	ErrCodeDuplicateTask  = "E202" // Two tasks share a name
	ErrCodeUnknownDataset = "E203" // Output path names no produced dataset
)

// Error is a manifest loading or validation error.
type Error struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *Error) Error() string {
	prefix := e.Code
	if e.Field != "" {
		prefix += ": " + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// IsManifestError reports whether err is a manifest error, optionally
// with one of the given codes.
func IsManifestError(err error, codes ...string) bool {
	var me *Error
	if !errors.As(err, &me) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if me.Code == c {
			return true
		}
	}
	return false
}

// fromCUE extracts the first CUE error with its position.
func fromCUE(code string, err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		out.Pos = positions[0]
	}
	return out
}
