package softdriver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nncert/nncert/conformance"
	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

func mustModel(t *testing.T, name string) *corpus.TestModel {
	t.Helper()
	m, err := corpus.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// lowerAndPrepare runs a corpus model through the wire form into a
// prepared model, cleaning both up when the test ends.
func lowerAndPrepare(t *testing.T, d *Driver, name string) (*corpus.TestModel, hal.PreparedModel) {
	t.Helper()
	m := mustModel(t, name)
	wire, err := conformance.LowerModel(m)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		for _, pool := range wire.Pools {
			pool.Close()
		}
	})

	prepared, err := d.PrepareModel(t.Context(), wire)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { prepared.Close() })
	return m, prepared
}

func buildRequest(t *testing.T, m *corpus.TestModel) *hal.Request {
	t.Helper()
	req, err := conformance.BuildRequest(m)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { req.Close() })
	return req
}

func TestOpenRegistered(t *testing.T) {
	device, err := hal.Open("soft")
	if err != nil {
		t.Fatal(err)
	}
	if device.Name() != "soft" {
		t.Errorf("name = %q, want soft", device.Name())
	}
}

func TestSupportedOperations(t *testing.T) {
	model := &hal.Model{Operations: []hal.Operation{
		{Type: hal.OpAdd},
		{Type: hal.OpSoftmax},
		{Type: hal.OpConv2D},
	}}

	flags, err := New().SupportedOperations(model)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{true, false, true}, flags); diff != "" {
		t.Errorf("support flags (-want +got):\n%s", diff)
	}
}

func TestPrepareUnsupportedOperation(t *testing.T) {
	wire, err := conformance.LowerModel(mustModel(t, "add_float32"))
	if err != nil {
		t.Fatal(err)
	}
	wire.Operations[0].Type = hal.OpSoftmax

	_, err = New().PrepareModel(t.Context(), wire)
	if hal.StatusOf(err) != hal.StatusGeneralFailure {
		t.Errorf("status = %s, want GENERAL_FAILURE", hal.StatusOf(err))
	}
}

func TestExecuteSync(t *testing.T) {
	for _, name := range []string{
		"add_float32",
		"add_relaxed",
		"add_float16",
		"add_quant8",
		"mul_relu_float32",
		"reshape_float32",
		"concat_float32",
		"conv2d_per_channel_quant8",
	} {
		t.Run(name, func(t *testing.T) {
			m, prepared := lowerAndPrepare(t, New(), name)
			req := buildRequest(t, m)

			exec, err := prepared.ExecuteSync(t.Context(), req, false)
			if err != nil {
				t.Fatal(err)
			}
			if exec.Status != hal.StatusNone {
				t.Fatalf("status = %s", exec.Status)
			}
			if exec.Timing != hal.TimingUnavailable {
				t.Errorf("unmeasured run carries timing %s", exec.Timing)
			}

			if len(exec.OutputShapes) != len(m.OutputIndexes) {
				t.Fatalf("got %d shapes for %d outputs", len(exec.OutputShapes), len(m.OutputIndexes))
			}
			for i, shape := range exec.OutputShapes {
				if !shape.IsSufficient {
					t.Errorf("output %d insufficient", i)
				}
				want := m.Operands[m.OutputIndexes[i]].Dimensions
				if diff := cmp.Diff(want, shape.Dimensions); diff != "" {
					t.Errorf("output %d shape (-want +got):\n%s", i, diff)
				}
			}

			buffers, err := conformance.OutputBuffers(req)
			if err != nil {
				t.Fatal(err)
			}
			for i, buf := range buffers {
				if diff := cmp.Diff(m.ExpectedOutput(i).Bytes(), buf.Bytes()); diff != "" {
					t.Errorf("output %d bytes (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestExecuteMeasured(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	exec, err := prepared.ExecuteSync(t.Context(), req, true)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != hal.StatusNone {
		t.Fatalf("status = %s", exec.Status)
	}
	if exec.Timing.OnDevice == hal.TimeUnavailable || exec.Timing.InDriver == hal.TimeUnavailable {
		t.Fatalf("measured run reports %s", exec.Timing)
	}
	if exec.Timing.OnDevice > exec.Timing.InDriver {
		t.Errorf("device time %s exceeds driver time %s", exec.Timing.OnDevice, exec.Timing.InDriver)
	}
}

func TestExecuteLatency(t *testing.T) {
	t.Setenv("NNCERT_SOFT_LATENCY", "20")

	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	exec, err := prepared.ExecuteSync(t.Context(), req, true)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Timing.InDriver < 20000 {
		t.Errorf("driver time %s, want at least 20ms of injected latency", exec.Timing.InDriver)
	}
}

func TestExecuteInsufficientWindow(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)
	if err := conformance.ShrinkOutput(0, req); err != nil {
		t.Fatal(err)
	}

	exec, err := prepared.ExecuteSync(t.Context(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != hal.StatusOutputInsufficientSize {
		t.Fatalf("status = %s, want OUTPUT_INSUFFICIENT_SIZE", exec.Status)
	}
	if len(exec.OutputShapes) != 1 || exec.OutputShapes[0].IsSufficient {
		t.Errorf("shapes = %+v", exec.OutputShapes)
	}
	if diff := cmp.Diff([]uint32{1, 2, 2, 1}, exec.OutputShapes[0].Dimensions); diff != "" {
		t.Errorf("reported shape (-want +got):\n%s", diff)
	}
}

func TestExecuteDynamicShape(t *testing.T) {
	m := mustModel(t, "mul_relu_float32")
	wire, err := conformance.LowerModel(m)
	if err != nil {
		t.Fatal(err)
	}
	conformance.ZeroOutputDimensions(wire)

	prepared, err := New().PrepareModel(t.Context(), wire)
	if err != nil {
		t.Fatal(err)
	}
	defer prepared.Close()
	req := buildRequest(t, m)

	exec, err := prepared.ExecuteSync(t.Context(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != hal.StatusNone {
		t.Fatalf("status = %s", exec.Status)
	}
	if diff := cmp.Diff([]uint32{1, 4}, exec.OutputShapes[0].Dimensions); diff != "" {
		t.Errorf("inferred shape (-want +got):\n%s", diff)
	}
}

func TestExecuteAsync(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	cb := hal.NewExecutionCallback()
	if err := prepared.ExecuteAsync(t.Context(), req, false, cb); err != nil {
		t.Fatal(err)
	}
	exec, err := cb.Wait(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != hal.StatusNone {
		t.Errorf("status = %s", exec.Status)
	}
}

func TestBurst(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	b, err := prepared.OpenBurst(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	slots := []int32{0, 1}
	for range 2 {
		status, shapes, _, err := b.Execute(t.Context(), req, slots, false)
		if err != nil {
			t.Fatal(err)
		}
		if status != hal.BurstOK {
			t.Fatalf("status = %s", status)
		}
		if len(shapes) != 1 {
			t.Fatalf("got %d shapes", len(shapes))
		}
	}
}

func TestBurstBadSlots(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	b, err := prepared.OpenBurst(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	status, _, _, err := b.Execute(t.Context(), req, []int32{0}, false)
	if err != nil {
		t.Fatal(err)
	}
	if status != hal.BurstBadData {
		t.Errorf("status = %s, want BAD_DATA", status)
	}
}

func TestBurstSlotRebound(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)
	other := buildRequest(t, m)

	b, err := prepared.OpenBurst(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if status, _, _, _ := b.Execute(t.Context(), req, []int32{0, 1}, false); status != hal.BurstOK {
		t.Fatalf("first execute = %s", status)
	}
	// same slots, different pools
	status, _, _, err := b.Execute(t.Context(), other, []int32{0, 1}, false)
	if err != nil {
		t.Fatal(err)
	}
	if status != hal.BurstBadData {
		t.Errorf("status = %s, want BAD_DATA", status)
	}
}

func TestClosedPrepared(t *testing.T) {
	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)
	prepared.Close()

	if _, err := prepared.ExecuteSync(t.Context(), req, false); err == nil {
		t.Error("sync execution on a closed model succeeded")
	}
	if _, err := prepared.OpenBurst(t.Context()); err == nil {
		t.Error("burst on a closed model succeeded")
	}
}

func TestInvalidRequest(t *testing.T) {
	_, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, mustModel(t, "reshape_float32"))

	exec, err := prepared.ExecuteSync(t.Context(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != hal.StatusInvalidArgument {
		t.Errorf("status = %s, want INVALID_ARGUMENT", exec.Status)
	}
}

func TestExecuteLatencyUnmeasured(t *testing.T) {
	t.Setenv("NNCERT_SOFT_LATENCY", "1")

	m, prepared := lowerAndPrepare(t, New(), "add_float32")
	req := buildRequest(t, m)

	exec, err := prepared.ExecuteSync(t.Context(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Timing != hal.TimingUnavailable {
		t.Errorf("unmeasured run carries timing %s", exec.Timing)
	}
}
