package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
)

// timeLayout is used for every stored timestamp. Fixed-width UTC strings
// sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalCanonical converts a value to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalCanonical(what string, v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// eventColumns extracts the indexed columns of an event.
func eventColumns(e provenance.Event) (node, operation, outcome string) {
	switch {
	case e.Decision != nil:
		return e.Decision.Node, string(e.Decision.Operation), string(e.Decision.Outcome)
	case e.Task != nil:
		return e.Task.Name, e.Task.Operation, string(e.Task.Status)
	default:
		return "", "", ""
	}
}

// unmarshalEvent parses a stored event payload.
func unmarshalEvent(payload string, e *provenance.Event) error {
	if err := json.Unmarshal([]byte(payload), e); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	return nil
}
