package conformance

import (
	"fmt"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/shm"
)

// LowerModel turns a corpus model into its wire form. Small constants
// (CONSTANT_COPY) are packed into the operand value blob; large ones
// (CONSTANT_REFERENCE) into a single shared memory pool at index 0.
// Both are packed back to back at aligned offsets, with each location
// recording the unpadded length.
func LowerModel(m *corpus.TestModel) (*hal.Model, error) {
	operands := make([]hal.Operand, len(m.Operands))

	var constCopySize, constRefSize uint32
	for i := range m.Operands {
		op := &m.Operands[i]

		var loc hal.DataLocation
		switch op.Lifetime {
		case hal.ConstantCopy:
			if op.Data == nil {
				return nil, fmt.Errorf("lower %s: CONSTANT_COPY operand %d has no data", m.Name, i)
			}
			loc = hal.DataLocation{PoolIndex: 0, Offset: constCopySize, Length: op.Data.Size()}
			constCopySize += op.Data.AlignedSize()
		case hal.ConstantReference:
			if op.Data == nil {
				return nil, fmt.Errorf("lower %s: CONSTANT_REFERENCE operand %d has no data", m.Name, i)
			}
			loc = hal.DataLocation{PoolIndex: 0, Offset: constRefSize, Length: op.Data.Size()}
			constRefSize += op.Data.AlignedSize()
		}

		var channelQuant *hal.SymmPerChannelQuantParams
		if op.Type == hal.TensorQuant8SymmPerChannel {
			if op.ChannelQuant == nil {
				return nil, fmt.Errorf("lower %s: per-channel operand %d has no channel params", m.Name, i)
			}
			channelQuant = &hal.SymmPerChannelQuantParams{
				Scales:     append([]float32(nil), op.ChannelQuant.Scales...),
				ChannelDim: op.ChannelQuant.ChannelDim,
			}
		}

		operands[i] = hal.Operand{
			Type:         op.Type,
			Dimensions:   append([]uint32(nil), op.Dimensions...),
			Scale:        op.Scale,
			ZeroPoint:    op.ZeroPoint,
			Lifetime:     op.Lifetime,
			Location:     loc,
			ChannelQuant: channelQuant,
		}
	}

	operations := make([]hal.Operation, len(m.Operations))
	for i, op := range m.Operations {
		operations[i] = hal.Operation{
			Type:    op.Type,
			Inputs:  append([]uint32(nil), op.Inputs...),
			Outputs: append([]uint32(nil), op.Outputs...),
		}

		for _, idx := range op.Inputs {
			if int(idx) >= len(operands) {
				return nil, fmt.Errorf("lower %s: operation %d input references operand %d of %d", m.Name, i, idx, len(operands))
			}
			operands[idx].NumberOfConsumers++
		}
		for _, idx := range op.Outputs {
			if int(idx) >= len(operands) {
				return nil, fmt.Errorf("lower %s: operation %d output references operand %d of %d", m.Name, i, idx, len(operands))
			}
		}
	}

	operandValues := make([]byte, constCopySize)
	for i := range m.Operands {
		op := &m.Operands[i]
		if op.Lifetime == hal.ConstantCopy {
			copy(operandValues[operands[i].Location.Offset:], op.Data.Bytes())
		}
	}

	var pools []*shm.Memory
	if constRefSize > 0 {
		pool, err := shm.Allocate(m.Name+" constants", int(constRefSize))
		if err != nil {
			return nil, err
		}
		for i := range m.Operands {
			op := &m.Operands[i]
			if op.Lifetime == hal.ConstantReference {
				copy(pool.Bytes()[operands[i].Location.Offset:], op.Data.Bytes())
			}
		}
		pools = append(pools, pool)
	}

	return &hal.Model{
		Operands:              operands,
		Operations:            operations,
		InputIndexes:          append([]uint32(nil), m.InputIndexes...),
		OutputIndexes:         append([]uint32(nil), m.OutputIndexes...),
		OperandValues:         operandValues,
		Pools:                 pools,
		RelaxFloat32ToFloat16: m.IsRelaxed,
	}, nil
}
