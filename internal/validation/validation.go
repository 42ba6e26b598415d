// Package validation checks configuration and parameter structs against
// their `validate` tags.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report the names users write (yaml, then json) instead of Go names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"yaml", "json", "mapstructure"} {
				name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
	})
	return validate
}

// FieldError is one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every failed constraint of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Struct validates s using its struct tags.
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.Fields[i] = FieldError{Field: fieldPath(fe), Message: message(fe)}
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must have at most " + fe.Param() + " entries"
	case "dive":
		return "is invalid"
	default:
		return "failed " + fe.Tag() + " constraint"
	}
}
