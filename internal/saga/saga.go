// Package saga runs an ordered list of non-atomic steps against a store
// that has no multi-statement transactions. There is no compensation: a
// failed step stops the run, and the error records exactly which steps
// completed so the caller can report the partial state instead of guessing.
package saga

import (
	"context"
	"fmt"
	"strings"
)

// Step is one named unit of a multi-step operation.
type Step struct {
	Name string
	Run  func(context.Context) error
}

// StepError reports a failed step together with the completion cursor.
type StepError struct {
	Step      string
	Index     int
	Completed []string
	Err       error
}

func (e *StepError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("step %q failed before any step completed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q failed after completing: %s: %v",
		e.Step, strings.Join(e.Completed, ", "), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes the steps in order, stopping at the first failure. Completed
// steps are not rolled back.
func Run(ctx context.Context, steps []Step) error {
	var completed []string
	for i, step := range steps {
		if err := step.Run(ctx); err != nil {
			return &StepError{Step: step.Name, Index: i, Completed: completed, Err: err}
		}
		completed = append(completed, step.Name)
	}
	return nil
}
