// Package hal defines the wire-level model and request structures
// exchanged with neural network drivers, plus the driver interfaces the
// conformance suite exercises. Operands index into a value blob or
// memory pools, operations index into operands, and requests bind
// input and output buffers by pool index.
package hal

import (
	"fmt"

	"github.com/nncert/nncert/shm"
)

type OperandType int32

const (
	Float32 OperandType = iota
	Int32
	UInt32
	TensorFloat32
	TensorInt32
	TensorQuant8Asymm
	Bool
	TensorQuant16Symm
	TensorFloat16
	TensorBool8
	Float16
	TensorQuant8SymmPerChannel
	TensorQuant16Asymm
	TensorQuant8Symm
	TensorQuant8AsymmSigned
)

var operandTypeNames = map[OperandType]string{
	Float32:                    "FLOAT32",
	Int32:                      "INT32",
	UInt32:                     "UINT32",
	TensorFloat32:              "TENSOR_FLOAT32",
	TensorInt32:                "TENSOR_INT32",
	TensorQuant8Asymm:          "TENSOR_QUANT8_ASYMM",
	Bool:                       "BOOL",
	TensorQuant16Symm:          "TENSOR_QUANT16_SYMM",
	TensorFloat16:              "TENSOR_FLOAT16",
	TensorBool8:                "TENSOR_BOOL8",
	Float16:                    "FLOAT16",
	TensorQuant8SymmPerChannel: "TENSOR_QUANT8_SYMM_PER_CHANNEL",
	TensorQuant16Asymm:         "TENSOR_QUANT16_ASYMM",
	TensorQuant8Symm:           "TENSOR_QUANT8_SYMM",
	TensorQuant8AsymmSigned:    "TENSOR_QUANT8_ASYMM_SIGNED",
}

func (t OperandType) String() string {
	if s, ok := operandTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("OPERAND_TYPE(%d)", int32(t))
}

// IsScalar reports whether t carries a single value with no dimensions.
func (t OperandType) IsScalar() bool {
	switch t {
	case Float32, Int32, UInt32, Bool, Float16:
		return true
	}
	return false
}

// ElementBytes returns the storage size of one element of t.
func (t OperandType) ElementBytes() uint32 {
	switch t {
	case TensorQuant8Asymm, TensorBool8, TensorQuant8SymmPerChannel, TensorQuant8Symm, TensorQuant8AsymmSigned, Bool:
		return 1
	case TensorQuant16Symm, TensorQuant16Asymm, TensorFloat16, Float16:
		return 2
	default:
		return 4
	}
}

// ByteSize returns the storage size of an operand of type t with the
// given dimensions. Scalars ignore dims; a tensor with a zero
// dimension has size zero.
func ByteSize(t OperandType, dims []uint32) uint32 {
	if t.IsScalar() {
		return t.ElementBytes()
	}
	size := t.ElementBytes()
	for _, d := range dims {
		size *= d
	}
	return size
}

type OperationType int32

const (
	OpAdd            OperationType = 0
	OpAveragePool2D  OperationType = 1
	OpConcatenation  OperationType = 2
	OpConv2D         OperationType = 3
	OpDequantize     OperationType = 6
	OpFullyConnected OperationType = 9
	OpLogistic       OperationType = 14
	OpMaxPool2D      OperationType = 17
	OpMul            OperationType = 18
	OpRelu           OperationType = 19
	OpReshape        OperationType = 22
	OpSoftmax        OperationType = 25
	OpTanh           OperationType = 28
)

var operationTypeNames = map[OperationType]string{
	OpAdd:            "ADD",
	OpAveragePool2D:  "AVERAGE_POOL_2D",
	OpConcatenation:  "CONCATENATION",
	OpConv2D:         "CONV_2D",
	OpDequantize:     "DEQUANTIZE",
	OpFullyConnected: "FULLY_CONNECTED",
	OpLogistic:       "LOGISTIC",
	OpMaxPool2D:      "MAX_POOL_2D",
	OpMul:            "MUL",
	OpRelu:           "RELU",
	OpReshape:        "RESHAPE",
	OpSoftmax:        "SOFTMAX",
	OpTanh:           "TANH",
}

func (t OperationType) String() string {
	if s, ok := operationTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("OPERATION_TYPE(%d)", int32(t))
}

type OperandLifetime int32

const (
	TemporaryVariable OperandLifetime = iota
	ModelInput
	ModelOutput
	ConstantCopy
	ConstantReference
	NoValue
)

var lifetimeNames = map[OperandLifetime]string{
	TemporaryVariable: "TEMPORARY_VARIABLE",
	ModelInput:        "SUBGRAPH_INPUT",
	ModelOutput:       "SUBGRAPH_OUTPUT",
	ConstantCopy:      "CONSTANT_COPY",
	ConstantReference: "CONSTANT_REFERENCE",
	NoValue:           "NO_VALUE",
}

func (l OperandLifetime) String() string {
	if s, ok := lifetimeNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LIFETIME(%d)", int32(l))
}

// FuseCode is the activation fused onto elementwise and convolution
// operations, passed as a trailing INT32 scalar input.
type FuseCode int32

const (
	FuseNone FuseCode = iota
	FuseRelu
	FuseRelu1
	FuseRelu6
)

// DataLocation addresses a byte range inside a pool. For CONSTANT_COPY
// operands PoolIndex is unused and the range addresses the model's
// operand value blob instead.
type DataLocation struct {
	PoolIndex uint32
	Offset    uint32
	Length    uint32
}

// SymmPerChannelQuantParams carries per-channel scales for
// TENSOR_QUANT8_SYMM_PER_CHANNEL operands. ZeroPoint is implicitly 0.
type SymmPerChannelQuantParams struct {
	Scales     []float32
	ChannelDim uint32
}

type Operand struct {
	Type              OperandType
	Dimensions        []uint32
	NumberOfConsumers uint32
	Scale             float32
	ZeroPoint         int32
	Lifetime          OperandLifetime
	Location          DataLocation

	// ChannelQuant is set only for TENSOR_QUANT8_SYMM_PER_CHANNEL.
	ChannelQuant *SymmPerChannelQuantParams
}

// Operation's Inputs and Outputs index into the model's operand table.
type Operation struct {
	Type    OperationType
	Inputs  []uint32
	Outputs []uint32
}

// Model is the driver-facing form of a graph. Small constants live
// inline in OperandValues; large ones live in Pools and are addressed
// by pool index.
type Model struct {
	Operands      []Operand
	Operations    []Operation
	InputIndexes  []uint32
	OutputIndexes []uint32
	OperandValues []byte
	Pools         []*shm.Memory

	RelaxFloat32ToFloat16 bool
}

// Clone returns a deep copy of the model structure. Pools are shared,
// not copied: they are immutable once the model is built.
func (m *Model) Clone() *Model {
	c := &Model{
		Operands:              make([]Operand, len(m.Operands)),
		Operations:            make([]Operation, len(m.Operations)),
		InputIndexes:          append([]uint32(nil), m.InputIndexes...),
		OutputIndexes:         append([]uint32(nil), m.OutputIndexes...),
		OperandValues:         append([]byte(nil), m.OperandValues...),
		Pools:                 append([]*shm.Memory(nil), m.Pools...),
		RelaxFloat32ToFloat16: m.RelaxFloat32ToFloat16,
	}
	for i, op := range m.Operands {
		op.Dimensions = append([]uint32(nil), op.Dimensions...)
		if op.ChannelQuant != nil {
			cq := *op.ChannelQuant
			cq.Scales = append([]float32(nil), cq.Scales...)
			op.ChannelQuant = &cq
		}
		c.Operands[i] = op
	}
	for i, op := range m.Operations {
		op.Inputs = append([]uint32(nil), op.Inputs...)
		op.Outputs = append([]uint32(nil), op.Outputs...)
		c.Operations[i] = op
	}
	return c
}
