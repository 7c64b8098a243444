// Package softdriver is the in-process reference driver: plain Go
// kernels over shared memory pools, with no accelerator behind them.
// It exists to pin down what a conforming driver looks like, so the
// validation suite is developed and tested against it.
package softdriver

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/hal"
)

func init() {
	hal.Register("soft", func() (hal.Device, error) { return New(), nil })
}

// Driver executes models on the CPU. Executions across all prepared
// models share a fixed number of slots, everything past that waits.
type Driver struct {
	name    string
	slots   *semaphore.Weighted
	latency time.Duration
}

func New() *Driver {
	slots := int64(envconfig.Slots())
	if slots <= 0 {
		slots = int64(runtime.NumCPU())
	}
	return &Driver{
		name:    "soft",
		slots:   semaphore.NewWeighted(slots),
		latency: envconfig.SoftLatency(),
	}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) SupportedOperations(model *hal.Model) ([]bool, error) {
	flags := make([]bool, len(model.Operations))
	for i, op := range model.Operations {
		_, flags[i] = kernels[op.Type]
	}
	return flags, nil
}

func (d *Driver) PrepareModel(ctx context.Context, model *hal.Model) (hal.PreparedModel, error) {
	if err := validateModel(model); err != nil {
		slog.Debug("rejecting model", "driver", d.name, "error", err)
		return nil, err
	}
	for _, op := range model.Operations {
		if _, ok := kernels[op.Type]; !ok {
			return nil, hal.Err("prepare "+op.Type.String(), hal.StatusGeneralFailure)
		}
	}

	slog.Debug("prepared model", "driver", d.name,
		"operations", len(model.Operations), "operands", len(model.Operands))
	return &preparedModel{driver: d, model: model}, nil
}
