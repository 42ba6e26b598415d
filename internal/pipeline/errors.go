package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes pipeline declaration errors.
type ErrorCode string

const (
	// ErrCodeGraphCycle indicates tasks that depend on each other.
	ErrCodeGraphCycle ErrorCode = "GRAPH_CYCLE"

	// ErrCodeUnresolvedInput indicates an input no task produces and no
	// caller supplies.
	ErrCodeUnresolvedInput ErrorCode = "UNRESOLVED_INPUT"

	// ErrCodeDuplicateOutput indicates a dataset name produced twice.
	ErrCodeDuplicateOutput ErrorCode = "DUPLICATE_OUTPUT"

	// ErrCodeDuplicateTask indicates two tasks with the same name.
	ErrCodeDuplicateTask ErrorCode = "DUPLICATE_TASK"

	// ErrCodeInvalidTask indicates a task declaration missing a name,
	// operation or output.
	ErrCodeInvalidTask ErrorCode = "INVALID_TASK"
)

// GraphError reports a pipeline that cannot run. It is returned before
// any task executes.
type GraphError struct {
	Code ErrorCode
	Task string
	// Dataset is the input or output name involved, if any.
	Dataset string
	// Cycle is the task path of a cycle, first task repeated at the end.
	Cycle   []string
	Message string
}

func (e *GraphError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Task != "" {
		fmt.Fprintf(&b, " [task %s]", e.Task)
	}
	if e.Dataset != "" {
		fmt.Fprintf(&b, " [dataset %s]", e.Dataset)
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Cycle, " -> "))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// IsGraphCycle returns true if the error is a cycle in the task graph.
// Uses errors.As to handle wrapped errors.
func IsGraphCycle(err error) bool {
	return hasCode(err, ErrCodeGraphCycle)
}

// IsUnresolvedInput returns true if the error is an unresolved input.
func IsUnresolvedInput(err error) bool {
	return hasCode(err, ErrCodeUnresolvedInput)
}

// IsGraphError returns true for any pipeline declaration error.
func IsGraphError(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

func hasCode(err error, code ErrorCode) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// TaskError wraps the failure of one task with its name and operation.
type TaskError struct {
	Task      string
	Operation string
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.Task, e.Operation, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
