package softdriver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/internal/orderedmap"
)

// Bursts cache this many pool mappings before evicting the oldest.
const maxCachedPools = 64

type preparedModel struct {
	driver *Driver
	model  *hal.Model
	closed atomic.Bool
}

func (p *preparedModel) execute(ctx context.Context, req *hal.Request, measure bool) (hal.Execution, error) {
	if p.closed.Load() {
		return hal.Execution{}, errors.New("softdriver: prepared model is closed")
	}
	if err := p.driver.slots.Acquire(ctx, 1); err != nil {
		return hal.Execution{}, err
	}
	defer p.driver.slots.Release(1)

	start := time.Now()
	if p.driver.latency > 0 {
		time.Sleep(p.driver.latency)
	}

	computeStart := time.Now()
	exec := newEngine(p.model, req).run()
	compute := time.Since(computeStart)

	if measure {
		exec.Timing = hal.Timing{
			OnDevice: hal.Micros(compute),
			InDriver: hal.Micros(time.Since(start)),
		}
	} else {
		exec.Timing = hal.TimingUnavailable
	}
	return exec, nil
}

func (p *preparedModel) ExecuteSync(ctx context.Context, req *hal.Request, measure bool) (hal.Execution, error) {
	return p.execute(ctx, req, measure)
}

func (p *preparedModel) ExecuteAsync(ctx context.Context, req *hal.Request, measure bool, cb *hal.ExecutionCallback) error {
	if p.closed.Load() {
		return errors.New("softdriver: prepared model is closed")
	}

	go func() {
		exec, err := p.execute(ctx, req, measure)
		if err != nil {
			slog.Warn("async execution", "error", err)
			exec = hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
		}
		cb.Notify(exec)
	}()
	return nil
}

func (p *preparedModel) OpenBurst(ctx context.Context) (hal.Burst, error) {
	if p.closed.Load() {
		return nil, errors.New("softdriver: prepared model is closed")
	}
	return &burst{
		prepared: p,
		cache:    orderedmap.New[int32, int64](),
	}, nil
}

func (p *preparedModel) Close() error {
	p.closed.Store(true)
	return nil
}

// burst keeps pool identities keyed by the caller's slot numbers, so
// repeated executions over the same pools skip the remapping cost a
// real driver would pay. The cache is bounded; the oldest mapping
// falls out first.
type burst struct {
	prepared *preparedModel
	cache    *orderedmap.Map[int32, int64]
	closed   atomic.Bool
}

func (b *burst) Execute(ctx context.Context, req *hal.Request, slots []int32, measure bool) (hal.BurstStatus, []hal.OutputShape, hal.Timing, error) {
	if b.closed.Load() {
		return hal.BurstBadState, nil, hal.TimingUnavailable, nil
	}
	if len(slots) != len(req.Pools) {
		return hal.BurstBadData, nil, hal.TimingUnavailable, nil
	}

	for i, slot := range slots {
		if cached, ok := b.cache.Get(slot); ok {
			if cached != req.Pools[i].Key() {
				slog.Warn("burst slot rebound to a different pool", "slot", slot)
				return hal.BurstBadData, nil, hal.TimingUnavailable, nil
			}
			continue
		}
		b.cache.Set(slot, req.Pools[i].Key())
		for b.cache.Len() > maxCachedPools {
			if oldest, _, ok := b.cache.Oldest(); ok {
				b.cache.Delete(oldest)
			}
		}
	}

	exec, err := b.prepared.execute(ctx, req, measure)
	if err != nil {
		return hal.BurstOpFailed, nil, hal.TimingUnavailable, err
	}

	status := hal.BurstOK
	switch exec.Status {
	case hal.StatusNone:
	case hal.StatusOutputInsufficientSize:
		status = hal.BurstOutputInsufficientSize
	case hal.StatusInvalidArgument:
		status = hal.BurstBadData
	default:
		status = hal.BurstOpFailed
	}
	return status, exec.OutputShapes, exec.Timing, nil
}

func (b *burst) Close() error {
	b.closed.Store(true)
	return nil
}
