package corpus

import (
	"github.com/nncert/nncert/hal"
)

// TestOperand is the source form of one operand. Input operands carry
// stimulus data; output operands carry the expected result the driver
// must reproduce.
type TestOperand struct {
	Type       hal.OperandType
	Dimensions []uint32
	Scale      float32
	ZeroPoint  int32
	Lifetime   hal.OperandLifetime

	// ChannelQuant is set only for TENSOR_QUANT8_SYMM_PER_CHANNEL
	// operands.
	ChannelQuant *hal.SymmPerChannelQuantParams

	// Data is nil for temporaries and NO_VALUE operands.
	Data *Buffer
}

// ByteSize returns the wire size of the operand's value.
func (op *TestOperand) ByteSize() uint32 {
	return hal.ByteSize(op.Type, op.Dimensions)
}

type TestOperation struct {
	Type    hal.OperationType
	Inputs  []uint32
	Outputs []uint32
}

// TestModel is a self-contained conformance case: a graph plus one
// bound set of stimulus inputs and golden outputs.
type TestModel struct {
	Name          string
	Operands      []TestOperand
	Operations    []TestOperation
	InputIndexes  []uint32
	OutputIndexes []uint32

	// IsRelaxed permits float32 arithmetic at float16 precision.
	IsRelaxed bool

	// ExpectFailure marks a deliberately malformed model the driver
	// must reject at prepare time.
	ExpectFailure bool
}

// Clone returns a deep copy, including operand data.
func (m *TestModel) Clone() *TestModel {
	c := &TestModel{
		Name:          m.Name,
		Operands:      make([]TestOperand, len(m.Operands)),
		Operations:    make([]TestOperation, len(m.Operations)),
		InputIndexes:  append([]uint32(nil), m.InputIndexes...),
		OutputIndexes: append([]uint32(nil), m.OutputIndexes...),
		IsRelaxed:     m.IsRelaxed,
		ExpectFailure: m.ExpectFailure,
	}
	for i, op := range m.Operands {
		op.Dimensions = append([]uint32(nil), op.Dimensions...)
		if op.ChannelQuant != nil {
			cq := *op.ChannelQuant
			cq.Scales = append([]float32(nil), cq.Scales...)
			op.ChannelQuant = &cq
		}
		op.Data = op.Data.Clone()
		c.Operands[i] = op
	}
	for i, op := range m.Operations {
		op.Inputs = append([]uint32(nil), op.Inputs...)
		op.Outputs = append([]uint32(nil), op.Outputs...)
		c.Operations[i] = op
	}
	return c
}

// HasQuant8CoupledOperands reports whether the model carries
// TENSOR_QUANT8_ASYMM operands, i.e. whether it has a signed-symmetric
// counterpart a driver must treat identically.
func (m *TestModel) HasQuant8CoupledOperands() bool {
	for i := range m.Operands {
		if m.Operands[i].Type == hal.TensorQuant8Asymm {
			return true
		}
	}
	return false
}

// ExpectedOutput returns the golden buffer for output position i.
func (m *TestModel) ExpectedOutput(i int) *Buffer {
	return m.Operands[m.OutputIndexes[i]].Data
}
