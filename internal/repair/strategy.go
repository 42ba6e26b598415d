package repair

import (
	"fmt"
	"strings"
)

// Step is one repair technique.
type Step string

const (
	// StepBufferZero replaces the geometry with its zero-distance buffer.
	StepBufferZero Step = "buffer_zero"

	// StepOrientRings closes rings, drops repeated points and orients
	// shells counter-clockwise and holes clockwise.
	StepOrientRings Step = "orient_rings"

	// StepMakeValid asks the engine for a valid geometry covering the same
	// point set.
	StepMakeValid Step = "make_valid"
)

// DefaultStrategy is the repair order used when none is configured.
var DefaultStrategy = []Step{StepBufferZero, StepOrientRings}

// ParseStrategy validates step names. An empty list yields DefaultStrategy.
func ParseStrategy(names []string) ([]Step, error) {
	if len(names) == 0 {
		return append([]Step(nil), DefaultStrategy...), nil
	}
	steps := make([]Step, 0, len(names))
	seen := make(map[Step]bool, len(names))
	for _, n := range names {
		s := Step(strings.TrimSpace(n))
		switch s {
		case StepBufferZero, StepOrientRings, StepMakeValid:
		default:
			return nil, fmt.Errorf("unknown repair step %q: want buffer_zero, orient_rings or make_valid", n)
		}
		if seen[s] {
			return nil, fmt.Errorf("repair step %q listed twice", s)
		}
		seen[s] = true
		steps = append(steps, s)
	}
	return steps, nil
}

func stepNames(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}
