package conformance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/logutil"
	"github.com/nncert/nncert/tolerance"
)

// EvaluatePrepared runs one scenario of the grid against an already
// prepared model: build the request, apply the scenario's mutation,
// dispatch over the configured call path, then judge status, timing,
// reported shapes and output data.
func EvaluatePrepared(ctx context.Context, prepared hal.PreparedModel, m *corpus.TestModel, config TestConfig) *Result {
	res := &Result{Model: m.Name, Config: config, Verdict: Passed, Timing: hal.TimingUnavailable}
	v := &violations{}

	// a one byte output cannot lose a byte, so there is nothing to
	// test here
	if config.OutputType == OutputInsufficient && !outputSizeGreaterThanOne(m, 0) {
		slog.Debug("insufficient-size scenario not applicable", "model", m.Name, "config", config)
		return res
	}

	req, err := BuildRequest(m)
	if err != nil {
		return res.fail(v, err)
	}
	defer req.Close()

	if config.OutputType == OutputInsufficient {
		if err := ShrinkOutput(0, req); err != nil {
			return res.fail(v, err)
		}
	}

	logutil.Trace("dispatching execution", "model", m.Name, "config", config.String())
	exec, err := dispatch(ctx, prepared, req, config, v)
	if err != nil {
		return res.fail(v, err)
	}
	res.Status = exec.Status
	res.OutputShapes = exec.OutputShapes
	res.Timing = exec.Timing
	logutil.Trace("execution returned", "model", m.Name, "config", config.String(),
		"status", exec.Status.String(), "shapes", len(exec.OutputShapes), "timing", exec.Timing.String())

	// non-fully-specified scenarios exercise optional driver
	// behavior: a driver that cannot run them fails with
	// GENERAL_FAILURE and the scenario is skipped, not failed
	if config.OutputType != OutputFullySpecified && exec.Status == hal.StatusGeneralFailure {
		if config.ReportSkipping {
			slog.Info("early termination: driver cannot execute a model it does not support",
				"model", m.Name, "config", config)
		}
		return res.skip(v, "driver cannot execute a model it does not support")
	}

	if !config.MeasureTiming {
		if exec.Timing.OnDevice != hal.TimeUnavailable {
			v.addf("unmeasured run reported device time %s", exec.Timing.OnDevice)
		}
		if exec.Timing.InDriver != hal.TimeUnavailable {
			v.addf("unmeasured run reported driver time %s", exec.Timing.InDriver)
		}
	} else if exec.Timing.OnDevice != hal.TimeUnavailable && exec.Timing.InDriver != hal.TimeUnavailable {
		if exec.Timing.OnDevice > exec.Timing.InDriver {
			v.addf("device time %s exceeds driver time %s", exec.Timing.OnDevice, exec.Timing.InDriver)
		}
	}

	outputs := len(m.OutputIndexes)
	switch config.OutputType {
	case OutputFullySpecified:
		if exec.Status != hal.StatusNone {
			return res.fail(v, fmt.Errorf("execution failed with %s", exec.Status))
		}
		// shapes are optional here, but when present there must be
		// one per output
		if n := len(exec.OutputShapes); n != 0 && n != outputs {
			return res.fail(v, fmt.Errorf("reported %d output shapes for %d outputs", n, outputs))
		}

	case OutputUnspecified:
		if exec.Status != hal.StatusNone {
			return res.fail(v, fmt.Errorf("execution failed with %s", exec.Status))
		}
		if n := len(exec.OutputShapes); n != outputs {
			return res.fail(v, fmt.Errorf("reported %d output shapes for %d outputs", n, outputs))
		}

	case OutputInsufficient:
		if exec.Status != hal.StatusOutputInsufficientSize {
			return res.fail(v, fmt.Errorf("expected OUTPUT_INSUFFICIENT_SIZE, got %s", exec.Status))
		}
		if n := len(exec.OutputShapes); n != outputs {
			return res.fail(v, fmt.Errorf("reported %d output shapes for %d outputs", n, outputs))
		}
		if exec.OutputShapes[0].IsSufficient {
			return res.fail(v, fmt.Errorf("shrunk output 0 still reported as sufficient"))
		}
		// the mutated buffer holds no usable data
		return res.finish(v)
	}

	for i, shape := range exec.OutputShapes {
		if !shape.IsSufficient {
			v.addf("output %d reported as insufficient", i)
		}
		expect := m.Operands[m.OutputIndexes[i]].Dimensions
		if !slices.Equal(shape.Dimensions, expect) {
			v.addf("output %d shape %v, expected %v", i, shape.Dimensions, expect)
		}
	}

	buffers, err := OutputBuffers(req)
	if err != nil {
		return res.fail(v, err)
	}

	reports, err := tolerance.CheckResults(m, buffers)
	res.Reports = reports
	v.add(err)

	return res.finish(v)
}
