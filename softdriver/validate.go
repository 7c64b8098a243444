package softdriver

import (
	"fmt"

	"github.com/nncert/nncert/hal"
)

// Model validation runs at prepare time. Anything caught here is the
// model author's fault, so everything maps to INVALID_ARGUMENT.

func invalid(format string, args ...any) error {
	args = append(args, hal.Err("validate", hal.StatusInvalidArgument))
	return fmt.Errorf(format+": %w", args...)
}

func validateModel(m *hal.Model) error {
	if len(m.Operations) == 0 {
		return invalid("model has no operations")
	}

	for i := range m.Operands {
		if err := validateOperand(m, &m.Operands[i]); err != nil {
			return fmt.Errorf("operand %d: %w", i, err)
		}
	}

	written := make(map[uint32]bool)
	for i := range m.Operations {
		if err := validateOperation(m, &m.Operations[i], written); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, m.Operations[i].Type, err)
		}
	}

	for _, idx := range m.InputIndexes {
		if int(idx) >= len(m.Operands) {
			return invalid("input index %d out of range", idx)
		}
		if lt := m.Operands[idx].Lifetime; lt != hal.ModelInput {
			return invalid("input operand %d has lifetime %s", idx, lt)
		}
	}
	for _, idx := range m.OutputIndexes {
		if int(idx) >= len(m.Operands) {
			return invalid("output index %d out of range", idx)
		}
		if lt := m.Operands[idx].Lifetime; lt != hal.ModelOutput {
			return invalid("output operand %d has lifetime %s", idx, lt)
		}
	}
	return nil
}

func validateOperand(m *hal.Model, op *hal.Operand) error {
	switch op.Type {
	case hal.Float32, hal.Int32, hal.UInt32, hal.Bool, hal.Float16:
		if len(op.Dimensions) != 0 {
			return invalid("scalar %s carries dimensions %v", op.Type, op.Dimensions)
		}
		if op.Scale != 0 || op.ZeroPoint != 0 {
			return invalid("scalar %s carries quantization", op.Type)
		}

	case hal.TensorFloat32, hal.TensorFloat16, hal.TensorBool8:
		if op.Scale != 0 || op.ZeroPoint != 0 {
			return invalid("%s carries quantization", op.Type)
		}

	case hal.TensorInt32:
		// a scale is allowed: bias tensors of quantized convolutions
		if op.Scale < 0 || op.ZeroPoint != 0 {
			return invalid("%s carries scale %g, zero point %d", op.Type, op.Scale, op.ZeroPoint)
		}

	case hal.TensorQuant8Asymm:
		if op.Scale <= 0 || op.ZeroPoint < 0 || op.ZeroPoint > 255 {
			return invalid("%s carries scale %g, zero point %d", op.Type, op.Scale, op.ZeroPoint)
		}

	case hal.TensorQuant8AsymmSigned:
		if op.Scale <= 0 || op.ZeroPoint < -128 || op.ZeroPoint > 127 {
			return invalid("%s carries scale %g, zero point %d", op.Type, op.Scale, op.ZeroPoint)
		}

	case hal.TensorQuant8Symm, hal.TensorQuant16Symm:
		if op.Scale <= 0 || op.ZeroPoint != 0 {
			return invalid("%s carries scale %g, zero point %d", op.Type, op.Scale, op.ZeroPoint)
		}

	case hal.TensorQuant16Asymm:
		if op.Scale <= 0 || op.ZeroPoint < 0 || op.ZeroPoint > 65535 {
			return invalid("%s carries scale %g, zero point %d", op.Type, op.Scale, op.ZeroPoint)
		}

	case hal.TensorQuant8SymmPerChannel:
		if op.Scale != 0 || op.ZeroPoint != 0 {
			return invalid("per-channel operand carries a layer scale")
		}
		cq := op.ChannelQuant
		if cq == nil || len(cq.Scales) == 0 {
			return invalid("per-channel operand has no channel params")
		}
		if int(cq.ChannelDim) >= len(op.Dimensions) {
			return invalid("channel dimension %d out of range for rank %d", cq.ChannelDim, len(op.Dimensions))
		}
		for _, s := range cq.Scales {
			if s <= 0 {
				return invalid("channel scale %g", s)
			}
		}
		if d := op.Dimensions[cq.ChannelDim]; d != 0 && int(d) != len(cq.Scales) {
			return invalid("%d channel scales for dimension of %d", len(cq.Scales), d)
		}

	default:
		return invalid("unknown operand type %d", int(op.Type))
	}

	switch op.Lifetime {
	case hal.ConstantCopy:
		if end := int(op.Location.Offset) + int(op.Location.Length); op.Location.Length == 0 || end > len(m.OperandValues) {
			return invalid("constant window [%d, %d) outside the %d byte value blob", op.Location.Offset, end, len(m.OperandValues))
		}
	case hal.ConstantReference:
		if int(op.Location.PoolIndex) >= len(m.Pools) {
			return invalid("constant references pool %d of %d", op.Location.PoolIndex, len(m.Pools))
		}
		pool := m.Pools[op.Location.PoolIndex]
		if end := int(op.Location.Offset) + int(op.Location.Length); op.Location.Length == 0 || end > pool.Size() {
			return invalid("constant window [%d, %d) outside the %d byte pool", op.Location.Offset, end, pool.Size())
		}
	case hal.ModelInput, hal.ModelOutput, hal.TemporaryVariable, hal.NoValue:
	default:
		return invalid("unknown lifetime %d", int(op.Lifetime))
	}
	return nil
}

func validateOperation(m *hal.Model, op *hal.Operation, written map[uint32]bool) error {
	for _, idx := range op.Inputs {
		if int(idx) >= len(m.Operands) {
			return invalid("input references operand %d of %d", idx, len(m.Operands))
		}
	}
	for _, idx := range op.Outputs {
		if int(idx) >= len(m.Operands) {
			return invalid("output references operand %d of %d", idx, len(m.Operands))
		}
		if lt := m.Operands[idx].Lifetime; lt != hal.TemporaryVariable && lt != hal.ModelOutput {
			return invalid("writes operand %d with lifetime %s", idx, lt)
		}
		if written[idx] {
			return invalid("operand %d written twice", idx)
		}
		written[idx] = true
	}

	operand := func(idx uint32) *hal.Operand { return &m.Operands[idx] }

	switch op.Type {
	case hal.OpAdd, hal.OpMul:
		if len(op.Inputs) != 3 || len(op.Outputs) != 1 {
			return invalid("takes 3 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
		}
		if err := wantActivation(operand(op.Inputs[2])); err != nil {
			return err
		}
		a, b, out := operand(op.Inputs[0]), operand(op.Inputs[1]), operand(op.Outputs[0])
		if a.Type != b.Type || a.Type != out.Type {
			return invalid("mixes %s, %s and %s", a.Type, b.Type, out.Type)
		}
		if err := wantComputeTensor(a); err != nil {
			return err
		}

	case hal.OpRelu:
		if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
			return invalid("takes 1 input and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
		}
		in, out := operand(op.Inputs[0]), operand(op.Outputs[0])
		if in.Type != out.Type {
			return invalid("mixes %s and %s", in.Type, out.Type)
		}
		if err := wantComputeTensor(in); err != nil {
			return err
		}

	case hal.OpReshape:
		if len(op.Inputs) != 2 || len(op.Outputs) != 1 {
			return invalid("takes 2 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
		}
		if shape := operand(op.Inputs[1]); shape.Type != hal.TensorInt32 {
			return invalid("target shape is %s, want TENSOR_INT32", shape.Type)
		}

	case hal.OpConcatenation:
		if len(op.Inputs) < 3 || len(op.Outputs) != 1 {
			return invalid("takes at least 2 inputs plus an axis, got %d inputs", len(op.Inputs))
		}
		if err := wantActivationType(operand(op.Inputs[len(op.Inputs)-1]), "axis"); err != nil {
			return err
		}
		out := operand(op.Outputs[0])
		for _, idx := range op.Inputs[:len(op.Inputs)-1] {
			if operand(idx).Type != out.Type {
				return invalid("mixes %s and %s", operand(idx).Type, out.Type)
			}
		}

	case hal.OpConv2D:
		if len(op.Inputs) != 7 || len(op.Outputs) != 1 {
			return invalid("takes 7 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
		}
		in, filter, bias := operand(op.Inputs[0]), operand(op.Inputs[1]), operand(op.Inputs[2])
		switch in.Type {
		case hal.TensorFloat32, hal.TensorFloat16:
			if filter.Type != in.Type || bias.Type != in.Type {
				return invalid("%s input with %s filter and %s bias", in.Type, filter.Type, bias.Type)
			}
		case hal.TensorQuant8Asymm, hal.TensorQuant8AsymmSigned:
			if filter.Type != in.Type && filter.Type != hal.TensorQuant8SymmPerChannel {
				return invalid("%s input with %s filter", in.Type, filter.Type)
			}
			if bias.Type != hal.TensorInt32 {
				return invalid("quantized input with %s bias", bias.Type)
			}
		default:
			return invalid("cannot convolve %s", in.Type)
		}
		for _, idx := range op.Inputs[3:] {
			if scalar := operand(idx); scalar.Type != hal.Int32 {
				return invalid("parameter operand %d is %s, want INT32", idx, scalar.Type)
			}
		}
	}
	return nil
}

func wantActivation(op *hal.Operand) error {
	return wantActivationType(op, "fused activation")
}

func wantActivationType(op *hal.Operand, role string) error {
	if op.Type != hal.Int32 {
		return invalid("%s is %s, want INT32", role, op.Type)
	}
	return nil
}

func wantComputeTensor(op *hal.Operand) error {
	switch op.Type {
	case hal.TensorFloat32, hal.TensorFloat16, hal.TensorQuant8Asymm, hal.TensorQuant8AsymmSigned:
		return nil
	}
	return invalid("cannot compute on %s", op.Type)
}
