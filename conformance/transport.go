package conformance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nncert/nncert/hal"
)

// burstSlots assigns stable slot numbers to pools for the lifetime of
// one burst channel. A pool seen before keeps its slot, which is what
// lets the driver reuse its mapping.
type burstSlots struct {
	slots map[int64]int32
}

func newBurstSlots() *burstSlots {
	return &burstSlots{slots: make(map[int64]int32)}
}

func (b *burstSlots) assign(req *hal.Request) []int32 {
	out := make([]int32, len(req.Pools))
	for i, pool := range req.Pools {
		slot, ok := b.slots[pool.Key()]
		if !ok {
			slot = int32(len(b.slots))
			b.slots[pool.Key()] = slot
		}
		out[i] = slot
	}
	return out
}

// dispatch runs req over the call path selected by config and
// normalizes the outcome to a (status, output shapes, timing) triple.
// Soft contract breaches are recorded on v; the returned error is
// reserved for breakage that leaves no outcome to inspect.
func dispatch(ctx context.Context, prepared hal.PreparedModel, req *hal.Request, config TestConfig, v *violations) (hal.Execution, error) {
	switch config.Executor {
	case ExecutorAsync:
		cb := hal.NewExecutionCallback()
		if err := prepared.ExecuteAsync(ctx, req, config.MeasureTiming, cb); err != nil {
			// the driver must still notify the callback with the
			// same status it failed the launch with
			v.addf("async launch rejected: %v", err)
		}

		exec, err := cb.Wait(ctx)
		if err != nil {
			return exec, fmt.Errorf("async execution never notified: %w", err)
		}
		return exec, nil

	case ExecutorSync:
		exec, err := prepared.ExecuteSync(ctx, req, config.MeasureTiming)
		if err != nil {
			// transport breakage on the sync path reads as a
			// driver failure
			slog.Debug("sync transport error coerced to GENERAL_FAILURE", "error", err)
			return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}, nil
		}
		return exec, nil

	case ExecutorBurst:
		burst, err := prepared.OpenBurst(ctx)
		if err != nil {
			return hal.Execution{}, fmt.Errorf("open burst: %w", err)
		}
		defer burst.Close()

		slots := newBurstSlots().assign(req)
		status, shapes, timing, err := burst.Execute(ctx, req, slots, config.MeasureTiming)
		if err != nil {
			slog.Debug("burst transport error coerced to GENERAL_FAILURE", "error", err)
			return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}, nil
		}
		return hal.Execution{
			Status:       status.ErrorStatus(),
			OutputShapes: shapes,
			Timing:       timing,
		}, nil
	}

	return hal.Execution{}, fmt.Errorf("unknown executor %d", config.Executor)
}
