package workers

import "fmt"

type panicError struct {
	value any
}

func newPanicError(v any) error { return &panicError{value: v} }

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in worker: %v", e.value)
}
