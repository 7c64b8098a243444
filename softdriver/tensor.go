package softdriver

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/nncert/nncert/hal"
)

// tensor is a dense real-domain view of one operand. Quantized
// operands are dequantized on load and requantized on store, so the
// kernels only ever see float32 values.
type tensor struct {
	kind  hal.OperandType
	dims  []uint32
	scale float32
	zero  int32
	vals  []float32
}

func newTensor(op *hal.Operand, dims []uint32) *tensor {
	return &tensor{
		kind:  op.Type,
		dims:  append([]uint32(nil), dims...),
		scale: op.Scale,
		zero:  op.ZeroPoint,
		vals:  make([]float32, elements(dims)),
	}
}

// elements is the element count of a shape. A shape with an
// unspecified dimension has no elements yet.
func elements(dims []uint32) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	if len(dims) == 0 {
		return 0
	}
	return n
}

func decodeTensor(op *hal.Operand, dims []uint32, raw []byte) (*tensor, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%s is a scalar, not a tensor", op.Type)
	}
	if want := hal.ByteSize(op.Type, dims); uint32(len(raw)) != want {
		return nil, fmt.Errorf("%s%v holds %d bytes, want %d", op.Type, dims, len(raw), want)
	}

	t := newTensor(op, dims)
	switch op.Type {
	case hal.TensorFloat32:
		for i := range t.vals {
			t.vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case hal.TensorFloat16:
		for i := range t.vals {
			t.vals[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case hal.TensorQuant8Asymm:
		for i := range t.vals {
			t.vals[i] = op.Scale * float32(int32(raw[i])-op.ZeroPoint)
		}
	case hal.TensorQuant8AsymmSigned:
		for i := range t.vals {
			t.vals[i] = op.Scale * float32(int32(int8(raw[i]))-op.ZeroPoint)
		}
	case hal.TensorQuant8SymmPerChannel:
		if op.ChannelQuant == nil {
			return nil, fmt.Errorf("per-channel operand has no channel params")
		}
		stride := 1
		for d := int(op.ChannelQuant.ChannelDim) + 1; d < len(dims); d++ {
			stride *= int(dims[d])
		}
		size := int(dims[op.ChannelQuant.ChannelDim])
		for i := range t.vals {
			c := (i / stride) % size
			t.vals[i] = op.ChannelQuant.Scales[c] * float32(int8(raw[i]))
		}
	case hal.TensorInt32:
		// a nonzero scale marks a quantized bias tensor
		for i := range t.vals {
			v := int32(binary.LittleEndian.Uint32(raw[i*4:]))
			if op.Scale != 0 {
				t.vals[i] = op.Scale * float32(v)
			} else {
				t.vals[i] = float32(v)
			}
		}
	case hal.TensorBool8:
		for i := range t.vals {
			if raw[i] != 0 {
				t.vals[i] = 1
			}
		}
	default:
		return nil, fmt.Errorf("cannot decode %s", op.Type)
	}
	return t, nil
}

func storeTensor(window []byte, op *hal.Operand, t *tensor) error {
	if want := hal.ByteSize(op.Type, t.dims); uint32(len(window)) < want {
		return fmt.Errorf("window holds %d bytes, want %d", len(window), want)
	}

	switch op.Type {
	case hal.TensorFloat32:
		for i, v := range t.vals {
			binary.LittleEndian.PutUint32(window[i*4:], math.Float32bits(v))
		}
	case hal.TensorFloat16:
		for i, v := range t.vals {
			binary.LittleEndian.PutUint16(window[i*2:], float16.Fromfloat32(v).Bits())
		}
	case hal.TensorQuant8Asymm:
		for i, v := range t.vals {
			window[i] = uint8(quantize(v, op.Scale, op.ZeroPoint, 0, 255))
		}
	case hal.TensorQuant8AsymmSigned:
		for i, v := range t.vals {
			window[i] = uint8(int8(quantize(v, op.Scale, op.ZeroPoint, -128, 127)))
		}
	case hal.TensorInt32:
		for i, v := range t.vals {
			n := int32(v)
			if op.Scale != 0 {
				n = int32(math.Round(float64(v / op.Scale)))
			}
			binary.LittleEndian.PutUint32(window[i*4:], uint32(n))
		}
	case hal.TensorBool8:
		for i, v := range t.vals {
			if v != 0 {
				window[i] = 1
			} else {
				window[i] = 0
			}
		}
	default:
		return fmt.Errorf("cannot encode %s", op.Type)
	}
	return nil
}

func quantize(v, scale float32, zero, lo, hi int32) int32 {
	q := int32(math.Round(float64(v/scale))) + zero
	return min(max(q, lo), hi)
}
