package provenance

import (
	"time"

	"github.com/roach88/geosafe/internal/ir"
)

// TaskSummary is the per-task line of a Summary.
type TaskSummary struct {
	Name     string        `json:"name"`
	Status   ir.TaskStatus `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Reason   string        `json:"reason,omitempty"`
}

// Summary condenses a log for reporting.
type Summary struct {
	RunID        string        `json:"run_id"`
	Pipeline     string        `json:"pipeline,omitempty"`
	Status       RunStatus     `json:"status"`
	Duration     time.Duration `json:"duration_ns"`
	Tasks        int           `json:"tasks"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Decisions    int           `json:"decisions"`
	Blocked      int           `json:"blocked"`
	AutoResolved int           `json:"auto_resolved"`
	Repaired     int           `json:"repaired"`
	Excluded     int           `json:"excluded"`
	TaskStatus   []TaskSummary `json:"task_status"`
}

// Summary computes counts over the log.
func (l *Log) Summary() Summary {
	s := Summary{
		RunID:      l.RunID,
		Pipeline:   l.Pipeline,
		Status:     l.Status,
		Duration:   l.FinishedAt.Sub(l.StartedAt),
		TaskStatus: []TaskSummary{},
	}
	for _, e := range l.Events {
		switch {
		case e.Decision != nil:
			s.Decisions++
			switch e.Decision.Outcome {
			case ir.OutcomeBlocked:
				s.Blocked++
			case ir.OutcomeAutoResolved:
				s.AutoResolved++
			}
			for _, n := range e.Decision.Repairs {
				if n.Action == ir.RepairRepaired {
					s.Repaired++
				}
			}
			s.Excluded += e.Decision.Excluded
		case e.Task != nil:
			s.Tasks++
			switch e.Task.Status {
			case ir.TaskSucceeded:
				s.Succeeded++
			case ir.TaskFailed:
				s.Failed++
			case ir.TaskSkipped:
				s.Skipped++
			}
			s.TaskStatus = append(s.TaskStatus, TaskSummary{
				Name:     e.Task.Name,
				Status:   e.Task.Status,
				Duration: e.Task.Duration(),
				Reason:   e.Task.Reason,
			})
		}
	}
	return s
}
