package conformance

import (
	"context"
	"testing"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

// fakePrepared implements hal.PreparedModel in terms of one run
// function shared by all three call paths, so a test can describe a
// driver's behavior once and exercise it over every executor.
type fakePrepared struct {
	run func(req *hal.Request, measure bool) hal.Execution

	asyncErr error // returned from ExecuteAsync; the result is still notified
	silent   bool  // launch without ever notifying the callback
	syncErr  error // transport error on the sync path
	burstErr error // transport error on the burst path
	openErr  error // returned from OpenBurst

	asyncCalls int
	syncCalls  int
	burstCalls int
	closed     int
}

func (p *fakePrepared) ExecuteAsync(ctx context.Context, req *hal.Request, measure bool, cb *hal.ExecutionCallback) error {
	p.asyncCalls++
	if !p.silent {
		cb.Notify(p.run(req, measure))
	}
	return p.asyncErr
}

func (p *fakePrepared) ExecuteSync(ctx context.Context, req *hal.Request, measure bool) (hal.Execution, error) {
	p.syncCalls++
	if p.syncErr != nil {
		return hal.Execution{}, p.syncErr
	}
	return p.run(req, measure), nil
}

func (p *fakePrepared) OpenBurst(ctx context.Context) (hal.Burst, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &fakeBurst{prepared: p}, nil
}

func (p *fakePrepared) Close() error {
	p.closed++
	return nil
}

type fakeBurst struct {
	prepared *fakePrepared
	slots    [][]int32
}

func (b *fakeBurst) Execute(ctx context.Context, req *hal.Request, slots []int32, measure bool) (hal.BurstStatus, []hal.OutputShape, hal.Timing, error) {
	b.prepared.burstCalls++
	b.slots = append(b.slots, append([]int32(nil), slots...))
	if b.prepared.burstErr != nil {
		return hal.BurstOpFailed, nil, hal.TimingUnavailable, b.prepared.burstErr
	}

	exec := b.prepared.run(req, measure)
	status := hal.BurstOK
	switch exec.Status {
	case hal.StatusOutputInsufficientSize:
		status = hal.BurstOutputInsufficientSize
	case hal.StatusGeneralFailure:
		status = hal.BurstOpFailed
	}
	return status, exec.OutputShapes, exec.Timing, nil
}

func (b *fakeBurst) Close() error { return nil }

// goldenRun behaves like a correct driver for m: golden bytes land in
// each output window, and a window too small for its golden buffer is
// reported as insufficient instead of written.
func goldenRun(t *testing.T, m *corpus.TestModel, measured hal.Timing) func(*hal.Request, bool) hal.Execution {
	return func(req *hal.Request, measure bool) hal.Execution {
		exec := hal.Execution{Status: hal.StatusNone, Timing: hal.TimingUnavailable}
		if measure {
			exec.Timing = measured
		}
		for i, arg := range req.Outputs {
			golden := m.ExpectedOutput(i)
			shape := hal.OutputShape{
				Dimensions:   append([]uint32(nil), m.Operands[m.OutputIndexes[i]].Dimensions...),
				IsSufficient: true,
			}
			if arg.Location.Length < golden.Size() {
				shape.IsSufficient = false
				exec.Status = hal.StatusOutputInsufficientSize
			} else {
				window, err := req.Pools[arg.Location.PoolIndex].Slice(int(arg.Location.Offset), int(arg.Location.Length))
				if err != nil {
					t.Fatalf("output %d window: %v", i, err)
				}
				copy(window, golden.Bytes())
			}
			exec.OutputShapes = append(exec.OutputShapes, shape)
		}
		return exec
	}
}

// fakeDevice implements hal.Device with overridable support and
// prepare behavior. The zero value supports everything and refuses to
// prepare, so tests must say what preparing means.
type fakeDevice struct {
	supported func(model *hal.Model) ([]bool, error)
	prepare   func(model *hal.Model) (hal.PreparedModel, error)

	supportedCalls int
	prepareCalls   int
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) SupportedOperations(model *hal.Model) ([]bool, error) {
	d.supportedCalls++
	if d.supported != nil {
		return d.supported(model)
	}
	flags := make([]bool, len(model.Operations))
	for i := range flags {
		flags[i] = true
	}
	return flags, nil
}

func (d *fakeDevice) PrepareModel(ctx context.Context, model *hal.Model) (hal.PreparedModel, error) {
	d.prepareCalls++
	if d.prepare != nil {
		return d.prepare(model)
	}
	return nil, hal.Err("prepare", hal.StatusGeneralFailure)
}

func unsupported(model *hal.Model) ([]bool, error) {
	return make([]bool, len(model.Operations)), nil
}

// goldenDevice prepares any model into a golden driver for m.
func goldenDevice(t *testing.T, m *corpus.TestModel) (*fakeDevice, *fakePrepared) {
	prepared := &fakePrepared{run: goldenRun(t, m, hal.Timing{OnDevice: 500, InDriver: 800})}
	device := &fakeDevice{prepare: func(*hal.Model) (hal.PreparedModel, error) {
		return prepared, nil
	}}
	return device, prepared
}

// mustModel fetches a corpus model by name.
func mustModel(t *testing.T, name string) *corpus.TestModel {
	t.Helper()
	m, err := corpus.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return m
}
