package ir

import "slices"

// OperationKind names a guarded operation.
type OperationKind string

const (
	OpJoin      OperationKind = "join"
	OpBuffer    OperationKind = "buffer"
	OpOverlay   OperationKind = "overlay"
	OpClip      OperationKind = "clip"
	OpDistance  OperationKind = "distance"
	OpArea      OperationKind = "area"
	OpReproject OperationKind = "reproject"
	OpValidate  OperationKind = "validate"
)

// Outcome is the result of a guard or validator decision.
type Outcome string

const (
	OutcomeAllowed      Outcome = "allowed"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeAutoResolved Outcome = "auto-resolved"
)

// CRSBinding pairs a dataset name with the CRS it arrived in.
type CRSBinding struct {
	Dataset string `json:"dataset"`
	CRS     string `json:"crs"`
}

// Reprojection records one dataset moved between CRSs.
type Reprojection struct {
	Dataset string `json:"dataset"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// RepairAction is what the validator did with an invalid record.
type RepairAction string

const (
	RepairRepaired RepairAction = "repaired"
	RepairExcluded RepairAction = "repair_failed"
)

// RepairNote explains one repaired or excluded record.
type RepairNote struct {
	Index    int          `json:"index"`
	Action   RepairAction `json:"action"`
	Problem  string       `json:"problem"`
	Step     string       `json:"step,omitempty"`
	Strategy []string     `json:"strategy"`
}

// Decision is the record of one guard or validator invocation.
// Decisions are values; once appended to a provenance log they are never
// modified.
type Decision struct {
	Operation     OperationKind  `json:"operation"`
	Node          string         `json:"node,omitempty"`
	Inputs        []CRSBinding   `json:"inputs"`
	TargetCRS     string         `json:"target_crs,omitempty"`
	EffectiveCRS  string         `json:"effective_crs,omitempty"`
	Outcome       Outcome        `json:"outcome"`
	Reason        string         `json:"reason"`
	Reprojections []Reprojection `json:"reprojections,omitempty"`
	Repairs       []RepairNote   `json:"repairs,omitempty"`
	Excluded      int            `json:"excluded,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d Decision) Clone() Decision {
	out := d
	out.Inputs = slices.Clone(d.Inputs)
	out.Reprojections = slices.Clone(d.Reprojections)
	if d.Repairs != nil {
		out.Repairs = make([]RepairNote, len(d.Repairs))
		for i, n := range d.Repairs {
			n.Strategy = slices.Clone(n.Strategy)
			out.Repairs[i] = n
		}
	}
	return out
}

// InputCRS returns the distinct input CRS identifiers in first-seen order.
func (d Decision) InputCRS() []string {
	var out []string
	for _, in := range d.Inputs {
		if !slices.Contains(out, in.CRS) {
			out = append(out, in.CRS)
		}
	}
	return out
}

// TaskStatus is the lifecycle state of a pipeline task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskSkipped
}
