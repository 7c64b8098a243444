package softdriver

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/nncert/nncert/hal"
)

// engine carries the state of one execution: the prepared model, the
// request it runs against, and the tensors produced so far.
// Operations are listed in topological order, so a single forward
// pass resolves every operand.
type engine struct {
	model *hal.Model
	req   *hal.Request
	temps map[uint32]*tensor

	inputPos map[uint32]int
}

func newEngine(model *hal.Model, req *hal.Request) *engine {
	e := &engine{
		model:    model,
		req:      req,
		temps:    make(map[uint32]*tensor),
		inputPos: make(map[uint32]int, len(model.InputIndexes)),
	}
	for i, idx := range model.InputIndexes {
		e.inputPos[idx] = i
	}
	return e
}

func (e *engine) run() hal.Execution {
	if err := e.validateRequest(); err != nil {
		slog.Warn("invalid request", "error", err)
		return hal.Execution{Status: hal.StatusInvalidArgument, Timing: hal.TimingUnavailable}
	}

	for _, op := range e.model.Operations {
		kernel, ok := kernels[op.Type]
		if !ok {
			slog.Warn("no kernel for operation", "op", op.Type.String())
			return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
		}
		if err := kernel(e, op); err != nil {
			slog.Warn("kernel failed", "op", op.Type.String(), "error", err)
			return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
		}
	}

	return e.writeOutputs()
}

// writeOutputs encodes the computed output tensors into their request
// windows. A window too small for its tensor flips the execution
// status to OUTPUT_INSUFFICIENT_SIZE and stays unwritten; shapes are
// reported for every output either way.
func (e *engine) writeOutputs() hal.Execution {
	exec := hal.Execution{Status: hal.StatusNone, Timing: hal.TimingUnavailable}
	for i, idx := range e.model.OutputIndexes {
		t, ok := e.temps[idx]
		if !ok {
			slog.Warn("output never produced", "operand", idx)
			return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
		}
		op := &e.model.Operands[idx]
		arg := e.req.Outputs[i]

		shape := hal.OutputShape{
			Dimensions:   append([]uint32(nil), t.dims...),
			IsSufficient: true,
		}
		if need := hal.ByteSize(op.Type, t.dims); arg.Location.Length < need {
			shape.IsSufficient = false
			exec.Status = hal.StatusOutputInsufficientSize
		} else {
			window, err := e.req.Pools[arg.Location.PoolIndex].Slice(int(arg.Location.Offset), int(arg.Location.Length))
			if err != nil {
				slog.Warn("output window", "output", i, "error", err)
				return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
			}
			if err := storeTensor(window, op, t); err != nil {
				slog.Warn("encoding output", "output", i, "error", err)
				return hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
			}
		}
		exec.OutputShapes = append(exec.OutputShapes, shape)
	}
	return exec
}

func (e *engine) validateRequest() error {
	if len(e.req.Inputs) != len(e.model.InputIndexes) {
		return fmt.Errorf("request has %d inputs for %d model inputs", len(e.req.Inputs), len(e.model.InputIndexes))
	}
	if len(e.req.Outputs) != len(e.model.OutputIndexes) {
		return fmt.Errorf("request has %d outputs for %d model outputs", len(e.req.Outputs), len(e.model.OutputIndexes))
	}

	for i, arg := range e.req.Inputs {
		if arg.HasNoValue {
			if arg.Location != (hal.DataLocation{}) {
				return fmt.Errorf("input %d has no value but a location", i)
			}
			continue
		}
		op := &e.model.Operands[e.model.InputIndexes[i]]
		dims := op.Dimensions
		if len(arg.Dimensions) > 0 {
			dims = arg.Dimensions
		}
		for _, d := range dims {
			if d == 0 {
				return fmt.Errorf("input %d shape %v is not fully specified", i, dims)
			}
		}
		if want := hal.ByteSize(op.Type, dims); arg.Location.Length != want {
			return fmt.Errorf("input %d window is %d bytes, want %d", i, arg.Location.Length, want)
		}
		if err := e.checkWindow(arg.Location); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}

	for i, arg := range e.req.Outputs {
		if arg.HasNoValue {
			return fmt.Errorf("output %d has no value", i)
		}
		if err := e.checkWindow(arg.Location); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}

func (e *engine) checkWindow(loc hal.DataLocation) error {
	if int(loc.PoolIndex) >= len(e.req.Pools) {
		return fmt.Errorf("references pool %d of %d", loc.PoolIndex, len(e.req.Pools))
	}
	if end := int(loc.Offset) + int(loc.Length); end > e.req.Pools[loc.PoolIndex].Size() {
		return fmt.Errorf("window [%d, %d) overruns pool of %d bytes", loc.Offset, end, e.req.Pools[loc.PoolIndex].Size())
	}
	return nil
}

// operandBytes resolves the raw value of an operand along with its
// effective dimensions. Request arguments may narrow an input's
// dimensions; constants always use the model's.
func (e *engine) operandBytes(idx uint32) ([]byte, []uint32, error) {
	op := &e.model.Operands[idx]
	switch op.Lifetime {
	case hal.ConstantCopy:
		end := int(op.Location.Offset) + int(op.Location.Length)
		if end > len(e.model.OperandValues) {
			return nil, nil, fmt.Errorf("operand %d overruns the value blob", idx)
		}
		return e.model.OperandValues[op.Location.Offset:end], op.Dimensions, nil

	case hal.ConstantReference:
		if int(op.Location.PoolIndex) >= len(e.model.Pools) {
			return nil, nil, fmt.Errorf("operand %d references pool %d of %d", idx, op.Location.PoolIndex, len(e.model.Pools))
		}
		raw, err := e.model.Pools[op.Location.PoolIndex].Slice(int(op.Location.Offset), int(op.Location.Length))
		if err != nil {
			return nil, nil, fmt.Errorf("operand %d: %w", idx, err)
		}
		return raw, op.Dimensions, nil

	case hal.ModelInput:
		pos, ok := e.inputPos[idx]
		if !ok {
			return nil, nil, fmt.Errorf("operand %d is not listed as a model input", idx)
		}
		arg := e.req.Inputs[pos]
		if arg.HasNoValue {
			return nil, nil, fmt.Errorf("input %d carries no value", pos)
		}
		dims := op.Dimensions
		if len(arg.Dimensions) > 0 {
			dims = arg.Dimensions
		}
		raw, err := e.req.Pools[arg.Location.PoolIndex].Slice(int(arg.Location.Offset), int(arg.Location.Length))
		if err != nil {
			return nil, nil, fmt.Errorf("input %d: %w", pos, err)
		}
		return raw, dims, nil

	default:
		return nil, nil, fmt.Errorf("operand %d has lifetime %s, nothing to read", idx, op.Lifetime)
	}
}

func (e *engine) operandTensor(idx uint32) (*tensor, error) {
	if t, ok := e.temps[idx]; ok {
		return t, nil
	}
	raw, dims, err := e.operandBytes(idx)
	if err != nil {
		return nil, err
	}
	return decodeTensor(&e.model.Operands[idx], dims, raw)
}

func (e *engine) scalarInt(idx uint32) (int32, error) {
	if got := e.model.Operands[idx].Type; got != hal.Int32 {
		return 0, fmt.Errorf("operand %d is %s, want INT32", idx, got)
	}
	raw, _, err := e.operandBytes(idx)
	if err != nil {
		return 0, err
	}
	if len(raw) < 4 {
		return 0, fmt.Errorf("scalar operand %d holds %d bytes", idx, len(raw))
	}
	return int32(binary.LittleEndian.Uint32(raw)), nil
}
