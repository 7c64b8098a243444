package hal

import (
	"context"
	"sync"
)

// ExecutionCallback receives the outcome of an asynchronously launched
// execution. Notify may be called at most once per execution; drivers
// calling it again are ignored. Wait may be called any number of
// times once the result landed.
type ExecutionCallback struct {
	once   sync.Once
	done   chan struct{}
	result Execution
}

func NewExecutionCallback() *ExecutionCallback {
	return &ExecutionCallback{done: make(chan struct{})}
}

// Notify records the outcome and releases all waiters.
func (c *ExecutionCallback) Notify(e Execution) {
	c.once.Do(func() {
		c.result = e
		close(c.done)
	})
}

// Wait blocks until the driver notified an outcome or ctx ends. On
// context expiry the execution counts as a missed deadline.
func (c *ExecutionCallback) Wait(ctx context.Context) (Execution, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Execution{Status: StatusMissedDeadlineTransient, Timing: TimingUnavailable}, ctx.Err()
	}
}
