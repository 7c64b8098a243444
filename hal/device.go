package hal

import "context"

// Execution is the normalized outcome of one execution attempt,
// regardless of which call path produced it.
type Execution struct {
	Status       ErrorStatus
	OutputShapes []OutputShape
	Timing       Timing
}

// Device is a driver endpoint under test.
type Device interface {
	Name() string

	// SupportedOperations reports, per operation in model, whether
	// the device can execute it.
	SupportedOperations(model *Model) ([]bool, error)

	// PrepareModel compiles model for execution. A driver that
	// rejects the model returns a StatusError with the rejection
	// status.
	PrepareModel(ctx context.Context, model *Model) (PreparedModel, error)
}

// PreparedModel is a compiled model exposing the three execution call
// paths drivers must implement.
type PreparedModel interface {
	// ExecuteAsync launches the execution and returns once the
	// driver accepted it. The outcome arrives on cb.
	ExecuteAsync(ctx context.Context, req *Request, measure bool, cb *ExecutionCallback) error

	// ExecuteSync runs the execution to completion. Failures are
	// reported in the returned Execution status, not the error: the
	// error is for transport breakage only.
	ExecuteSync(ctx context.Context, req *Request, measure bool) (Execution, error)

	// OpenBurst opens a burst channel bound to this prepared model.
	OpenBurst(ctx context.Context) (Burst, error)

	Close() error
}

// Burst is a low-latency execution channel that caches pool mappings
// between executions. Callers pass one slot per request pool; a slot
// names a pool the driver may have already mapped.
type Burst interface {
	Execute(ctx context.Context, req *Request, slots []int32, measure bool) (BurstStatus, []OutputShape, Timing, error)
	Close() error
}
