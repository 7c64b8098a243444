package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nncert/nncert/hal"
)

// prepareForTest compiles a lowered model, tolerating rejection only
// when the driver did not claim full support. The support query is a
// guarantee in one direction: operations reported as supported must
// prepare, while a driver unsure of an operation may still prepare it
// successfully and the run continues.
func prepareForTest(ctx context.Context, device hal.Device, name string, model *hal.Model, reportSkipping bool) (hal.PreparedModel, bool, error) {
	supported, err := device.SupportedOperations(model)
	if err != nil {
		return nil, false, fmt.Errorf("supported operations: %w", err)
	}
	if len(supported) != len(model.Operations) {
		return nil, false, fmt.Errorf("driver reported %d support flags for %d operations", len(supported), len(model.Operations))
	}
	fullySupported := !slices.Contains(supported, false)

	prepared, err := device.PrepareModel(ctx, model)
	if err != nil {
		if !fullySupported {
			if reportSkipping {
				slog.Info("early termination: driver cannot prepare a model it does not support",
					"model", name, "status", hal.StatusOf(err).String())
			}
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("prepare: %w", err)
	}
	if prepared == nil {
		return nil, false, errors.New("driver returned no prepared model and no error")
	}

	return prepared, false, nil
}
