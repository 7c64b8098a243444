package conformance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/hal"
)

// Applies reports whether a corpus model participates in scenarios of
// the given kind. Quantization coupling only makes sense for single
// operation models carrying unsigned quant8 operands, the other kinds
// take every model that is expected to prepare.
func Applies(kind TestKind, m *corpus.TestModel) bool {
	switch kind {
	case KindQuantizationCoupling:
		return m.HasQuant8CoupledOperands() && len(m.Operations) == 1
	default:
		return !m.ExpectFailure
	}
}

// RunGeneral runs the fully specified scenario grid for one model.
func RunGeneral(ctx context.Context, device hal.Device, m *corpus.TestModel) *Outcome {
	return Execute(ctx, device, m, KindGeneral)
}

// RunDynamicShape runs the unspecified and insufficient output
// scenarios for one model.
func RunDynamicShape(ctx context.Context, device hal.Device, m *corpus.TestModel) *Outcome {
	return Execute(ctx, device, m, KindDynamicShape)
}

// RunQuantizationCoupling runs the signed against unsigned
// quantization comparison for one model.
func RunQuantizationCoupling(ctx context.Context, device hal.Device, m *corpus.TestModel) *Outcome {
	return Execute(ctx, device, m, KindQuantizationCoupling)
}

// RunKind runs every applicable corpus model under one kind.
func RunKind(ctx context.Context, device hal.Device, kind TestKind) []*Outcome {
	var outcomes []*Outcome
	for _, m := range corpus.All() {
		if !Applies(kind, m) {
			continue
		}
		outcomes = append(outcomes, Execute(ctx, device, m, kind))
	}
	return outcomes
}

// CheckRejection lowers a malformed corpus model and confirms the
// driver refuses to prepare it with an invalid argument status.
func CheckRejection(ctx context.Context, device hal.Device, m *corpus.TestModel) error {
	wire, err := LowerModel(m)
	if err != nil {
		return fmt.Errorf("lower model: %w", err)
	}
	defer closePools(wire)

	prepared, err := device.PrepareModel(ctx, wire)
	if err == nil {
		if prepared != nil {
			prepared.Close()
		}
		return errors.New("driver prepared an invalid model")
	}
	if status := hal.StatusOf(err); status != hal.StatusInvalidArgument {
		return fmt.Errorf("invalid model rejected with %s, want %s", status, hal.StatusInvalidArgument)
	}
	return nil
}

// RunSuite drives the complete conformance suite against device, one
// subtest per kind and corpus model. Drivers register their own
// top level test and hand the rest to this runner.
func RunSuite(t *testing.T, device hal.Device) {
	kinds := []struct {
		name string
		kind TestKind
	}{
		{"Generated", KindGeneral},
		{"DynamicOutputShape", KindDynamicShape},
		{"QuantizationCoupling", KindQuantizationCoupling},
	}
	for _, k := range kinds {
		t.Run(k.name, func(t *testing.T) {
			for _, m := range corpus.All() {
				if !Applies(k.kind, m) {
					continue
				}
				t.Run(m.Name, func(t *testing.T) {
					ctx, cancel := context.WithTimeout(context.Background(), envconfig.ExecTimeout())
					defer cancel()
					report(t, Execute(ctx, device, m, k.kind))
				})
			}
		})
	}
	t.Run("Validation", func(t *testing.T) {
		for _, m := range corpus.All() {
			if !m.ExpectFailure {
				continue
			}
			t.Run(m.Name, func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), envconfig.ExecTimeout())
				defer cancel()
				if err := CheckRejection(ctx, device, m); err != nil {
					t.Error(err)
				}
			})
		}
	})
}

func report(t *testing.T, o *Outcome) {
	t.Helper()
	switch o.Verdict {
	case Skipped:
		t.Skip(o.SkipReason)
	case Failed:
		if o.Err != nil {
			t.Error(o.Err)
		}
		for _, res := range o.Results {
			if res.Verdict == Failed {
				t.Errorf("%s: %v", res.Config, res.Err)
			}
		}
	}
}
