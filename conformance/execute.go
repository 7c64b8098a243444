package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

// Execute runs every scenario of the given kind for one corpus model
// against a driver and settles the aggregate outcome. Constant pools
// and prepared models are released before it returns.
func Execute(ctx context.Context, device hal.Device, m *corpus.TestModel, kind TestKind) *Outcome {
	outcome := &Outcome{Model: m.Name, Kind: kind}

	wire, err := LowerModel(m)
	if err != nil {
		outcome.Verdict = Failed
		outcome.Err = fmt.Errorf("lower model: %w", err)
		return outcome
	}
	defer closePools(wire)

	switch kind {
	case KindGeneral, KindDynamicShape:
		if kind == KindDynamicShape {
			ZeroOutputDimensions(wire)
		}
		prepared, skipped, err := prepareForTest(ctx, device, m.Name, wire, true)
		if err != nil {
			outcome.Verdict = Failed
			outcome.Err = err
			return outcome
		}
		if skipped {
			outcome.Verdict = Skipped
			outcome.SkipReason = "driver cannot prepare a model it does not support"
			return outcome
		}
		defer prepared.Close()
		outcome.Results = evaluateScenarios(ctx, prepared, m, kind)
		return outcome.settle()

	case KindQuantizationCoupling:
		return executeCoupled(ctx, device, m, wire, outcome)

	default:
		outcome.Verdict = Failed
		outcome.Err = fmt.Errorf("unknown test kind %d", kind)
		return outcome
	}
}

// executeCoupled prepares the unsigned model and its signed
// counterpart and requires the driver to treat them alike: both
// prepare, or both are rejected, and their executions skip in
// lockstep.
func executeCoupled(ctx context.Context, device hal.Device, m *corpus.TestModel, wire *hal.Model, outcome *Outcome) *Outcome {
	coupled, ok := corpus.ConvertQuant8AsymmOperandsToSigned(m)
	if !ok {
		outcome.Verdict = Failed
		outcome.Err = fmt.Errorf("model %s has no coupled quant8 operands", m.Name)
		return outcome
	}
	wireCoupled, err := LowerModel(coupled)
	if err != nil {
		outcome.Verdict = Failed
		outcome.Err = fmt.Errorf("lower signed model: %w", err)
		return outcome
	}
	defer closePools(wireCoupled)

	prepared, baseSkipped, err := prepareForTest(ctx, device, m.Name, wire, false)
	if err != nil {
		outcome.Verdict = Failed
		outcome.Err = err
		return outcome
	}
	preparedCoupled, coupledSkipped, err := prepareForTest(ctx, device, coupled.Name, wireCoupled, false)
	if err != nil {
		if prepared != nil {
			prepared.Close()
		}
		outcome.Verdict = Failed
		outcome.Err = fmt.Errorf("signed variant: %w", err)
		return outcome
	}

	if baseSkipped {
		if !coupledSkipped {
			preparedCoupled.Close()
			outcome.Verdict = Failed
			outcome.Err = errors.New("driver prepared the signed variant after rejecting the unsigned model")
			return outcome
		}
		slog.Info("early termination: driver cannot prepare a model it does not support", "model", m.Name)
		outcome.Verdict = Skipped
		outcome.SkipReason = "driver cannot prepare either quantization variant"
		return outcome
	}
	defer prepared.Close()
	if coupledSkipped {
		outcome.Verdict = Failed
		outcome.Err = errors.New("driver rejected the signed variant after preparing the unsigned model")
		return outcome
	}
	defer preparedCoupled.Close()

	results, skipped, err := evaluateCoupled(ctx, prepared, m, preparedCoupled, coupled)
	outcome.Results = results
	if err != nil {
		outcome.Verdict = Failed
		outcome.Err = err
		return outcome
	}
	if skipped {
		outcome.Verdict = Skipped
		outcome.SkipReason = "driver cannot execute a model it does not support"
		return outcome
	}
	return outcome.settle()
}

func closePools(m *hal.Model) {
	for _, pool := range m.Pools {
		if err := pool.Close(); err != nil {
			slog.Warn("closing constant pool", "error", err)
		}
	}
}
