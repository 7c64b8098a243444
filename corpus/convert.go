package corpus

import (
	"github.com/nncert/nncert/hal"
)

// ConvertQuant8AsymmOperandsToSigned derives the signed counterpart of
// a model with TENSOR_QUANT8_ASYMM operands: same graph, same real
// values, signed storage. Each asymm operand becomes
// TENSOR_QUANT8_ASYMM_SIGNED with its zero point shifted down by 128
// and every payload byte reinterpreted by flipping the sign bit.
// Returns false when the model has no quant8 asymm operands.
func ConvertQuant8AsymmOperandsToSigned(m *TestModel) (*TestModel, bool) {
	if !m.HasQuant8CoupledOperands() {
		return nil, false
	}

	c := m.Clone()
	c.Name = m.Name + "_signed"
	for i := range c.Operands {
		op := &c.Operands[i]
		if op.Type != hal.TensorQuant8Asymm {
			continue
		}

		op.Type = hal.TensorQuant8AsymmSigned
		op.ZeroPoint -= 128
		if op.Data != nil {
			data := op.Data.Bytes()
			shifted := make([]byte, len(data))
			for j, b := range data {
				shifted[j] = b ^ 0x80
			}
			op.Data = FromBytes(shifted)
		}
	}
	return c, true
}
