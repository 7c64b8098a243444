// Package conformance drives neural network drivers through the
// validation suite: it lowers corpus models to wire form, builds and
// mutates requests, dispatches executions over every call path, and
// judges the outcomes against golden data.
package conformance

import "fmt"

// Executor selects the call path an execution is dispatched over.
type Executor int

const (
	ExecutorAsync Executor = iota
	ExecutorSync
	ExecutorBurst
)

func (e Executor) String() string {
	switch e {
	case ExecutorAsync:
		return "async"
	case ExecutorSync:
		return "sync"
	case ExecutorBurst:
		return "burst"
	}
	return fmt.Sprintf("executor(%d)", int(e))
}

// OutputType selects how the request's output buffers are presented to
// the driver.
type OutputType int

const (
	// OutputFullySpecified binds correctly sized buffers against a
	// fully shaped model.
	OutputFullySpecified OutputType = iota

	// OutputUnspecified binds correctly sized buffers against a
	// model whose output dimensions were erased: the driver must
	// infer and report the shapes.
	OutputUnspecified

	// OutputInsufficient shrinks the first output buffer by one
	// byte: the driver must fail with OUTPUT_INSUFFICIENT_SIZE and
	// report the shapes it would have produced.
	OutputInsufficient
)

func (o OutputType) String() string {
	switch o {
	case OutputFullySpecified:
		return "fully_specified"
	case OutputUnspecified:
		return "unspecified"
	case OutputInsufficient:
		return "insufficient"
	}
	return fmt.Sprintf("output_type(%d)", int(o))
}

// TestKind names the three suite flavors.
type TestKind int

const (
	// KindGeneral runs fully specified executions over every call
	// path, with and without timing measurement.
	KindGeneral TestKind = iota

	// KindDynamicShape erases output dimensions from the lowered
	// model and runs the unspecified and insufficient scenarios.
	KindDynamicShape

	// KindQuantizationCoupling runs a quant8 asymm model and its
	// signed counterpart side by side and requires identical
	// support decisions.
	KindQuantizationCoupling
)

func (k TestKind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindDynamicShape:
		return "dynamic_shape"
	case KindQuantizationCoupling:
		return "quantization_coupling"
	}
	return fmt.Sprintf("test_kind(%d)", int(k))
}

// TestConfig is one point in the scenario grid.
type TestConfig struct {
	Executor      Executor
	MeasureTiming bool
	OutputType    OutputType

	// ReportSkipping controls whether an executed-but-unsupported
	// skip is logged. Coupled runs evaluate both model variants
	// quietly and decide afterwards.
	ReportSkipping bool
}

func (c TestConfig) String() string {
	measure := "unmeasured"
	if c.MeasureTiming {
		measure = "measured"
	}
	return fmt.Sprintf("%s/%s/%s", c.Executor, measure, c.OutputType)
}
