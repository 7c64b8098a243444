package softdriver

import (
	"fmt"

	"github.com/nncert/nncert/hal"
)

// Implicit padding schemes for CONV_2D and the pooling operations.
const (
	paddingSame  = 1
	paddingValid = 2
)

type kernel func(e *engine, op hal.Operation) error

var kernels = map[hal.OperationType]kernel{
	hal.OpAdd:           opAdd,
	hal.OpMul:           opMul,
	hal.OpRelu:          opRelu,
	hal.OpReshape:       opReshape,
	hal.OpConcatenation: opConcat,
	hal.OpConv2D:        opConv2D,
}

func activate(t *tensor, act hal.FuseCode) error {
	switch act {
	case hal.FuseNone:
	case hal.FuseRelu:
		for i, v := range t.vals {
			t.vals[i] = max(v, 0)
		}
	case hal.FuseRelu1:
		for i, v := range t.vals {
			t.vals[i] = min(max(v, -1), 1)
		}
	case hal.FuseRelu6:
		for i, v := range t.vals {
			t.vals[i] = min(max(v, 0), 6)
		}
	default:
		return fmt.Errorf("unknown fused activation %d", act)
	}
	return nil
}

func opAdd(e *engine, op hal.Operation) error {
	return elementwise(e, op, func(a, b float32) float32 { return a + b })
}

func opMul(e *engine, op hal.Operation) error {
	return elementwise(e, op, func(a, b float32) float32 { return a * b })
}

func elementwise(e *engine, op hal.Operation, f func(a, b float32) float32) error {
	if len(op.Inputs) != 3 || len(op.Outputs) != 1 {
		return fmt.Errorf("want 3 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
	}
	a, err := e.operandTensor(op.Inputs[0])
	if err != nil {
		return err
	}
	b, err := e.operandTensor(op.Inputs[1])
	if err != nil {
		return err
	}
	act, err := e.scalarInt(op.Inputs[2])
	if err != nil {
		return err
	}

	dims, err := broadcastDims(a.dims, b.dims)
	if err != nil {
		return err
	}
	out := newTensor(&e.model.Operands[op.Outputs[0]], dims)
	sa := broadcastStrides(a.dims, len(dims))
	sb := broadcastStrides(b.dims, len(dims))
	for i := range out.vals {
		ia, ib := gather(i, dims, sa, sb)
		out.vals[i] = f(a.vals[ia], b.vals[ib])
	}
	if err := activate(out, hal.FuseCode(act)); err != nil {
		return err
	}
	e.temps[op.Outputs[0]] = out
	return nil
}

// broadcastDims aligns two shapes from the trailing dimension. A
// dimension of one stretches to match its counterpart.
func broadcastDims(a, b []uint32) ([]uint32, error) {
	rank := max(len(a), len(b))
	out := make([]uint32, rank)
	for i := 1; i <= rank; i++ {
		var da, db uint32 = 1, 1
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}
		switch {
		case da == db:
			out[rank-i] = da
		case da == 1:
			out[rank-i] = db
		case db == 1:
			out[rank-i] = da
		default:
			return nil, fmt.Errorf("cannot broadcast %v with %v", a, b)
		}
	}
	return out, nil
}

// broadcastStrides computes row-major strides for dims aligned to the
// trailing end of a rank-sized shape. Stretched dimensions get stride
// zero so every broadcast element reads the same source.
func broadcastStrides(dims []uint32, rank int) []int {
	strides := make([]int, rank)
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		pos := rank - (len(dims) - i)
		if dims[i] != 1 {
			strides[pos] = stride
		}
		stride *= int(dims[i])
	}
	return strides
}

// gather maps a flat output index to the flat indexes of the two
// broadcast sources.
func gather(flat int, dims []uint32, sa, sb []int) (int, int) {
	ia, ib := 0, 0
	rem := flat
	for d := len(dims) - 1; d >= 0; d-- {
		coord := rem % int(dims[d])
		rem /= int(dims[d])
		ia += coord * sa[d]
		ib += coord * sb[d]
	}
	return ia, ib
}

func opRelu(e *engine, op hal.Operation) error {
	if len(op.Inputs) != 1 || len(op.Outputs) != 1 {
		return fmt.Errorf("want 1 input and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
	}
	in, err := e.operandTensor(op.Inputs[0])
	if err != nil {
		return err
	}

	out := newTensor(&e.model.Operands[op.Outputs[0]], in.dims)
	for i, v := range in.vals {
		out.vals[i] = max(v, 0)
	}
	e.temps[op.Outputs[0]] = out
	return nil
}

func opReshape(e *engine, op hal.Operation) error {
	if len(op.Inputs) != 2 || len(op.Outputs) != 1 {
		return fmt.Errorf("want 2 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
	}
	in, err := e.operandTensor(op.Inputs[0])
	if err != nil {
		return err
	}
	shape, err := e.operandTensor(op.Inputs[1])
	if err != nil {
		return err
	}

	// one target dimension may be -1, inferred from the rest
	dims := make([]uint32, len(shape.vals))
	infer := -1
	known := 1
	for i, v := range shape.vals {
		switch n := int(v); {
		case n == -1 && infer < 0:
			infer = i
		case n > 0:
			dims[i] = uint32(n)
			known *= n
		default:
			return fmt.Errorf("bad target shape %v", shape.vals)
		}
	}
	if infer >= 0 {
		if known == 0 || len(in.vals)%known != 0 {
			return fmt.Errorf("cannot infer dimension %d of %v from %d elements", infer, dims, len(in.vals))
		}
		dims[infer] = uint32(len(in.vals) / known)
		known *= int(dims[infer])
	}
	if known != len(in.vals) {
		return fmt.Errorf("target shape %v does not hold %d elements", dims, len(in.vals))
	}

	out := newTensor(&e.model.Operands[op.Outputs[0]], dims)
	copy(out.vals, in.vals)
	e.temps[op.Outputs[0]] = out
	return nil
}

func opConcat(e *engine, op hal.Operation) error {
	if len(op.Inputs) < 3 || len(op.Outputs) != 1 {
		return fmt.Errorf("want at least 2 inputs plus an axis, got %d inputs", len(op.Inputs))
	}
	axisInt, err := e.scalarInt(op.Inputs[len(op.Inputs)-1])
	if err != nil {
		return err
	}

	parts := make([]*tensor, len(op.Inputs)-1)
	for i := range parts {
		if parts[i], err = e.operandTensor(op.Inputs[i]); err != nil {
			return err
		}
	}

	rank := len(parts[0].dims)
	axis := int(axisInt)
	if axis < 0 || axis >= rank {
		return fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}

	dims := append([]uint32(nil), parts[0].dims...)
	dims[axis] = 0
	for i, p := range parts {
		if len(p.dims) != rank {
			return fmt.Errorf("input %d has rank %d, want %d", i, len(p.dims), rank)
		}
		for d := range p.dims {
			if d != axis && p.dims[d] != parts[0].dims[d] {
				return fmt.Errorf("input %d shape %v does not match %v off axis %d", i, p.dims, parts[0].dims, axis)
			}
		}
		dims[axis] += p.dims[axis]
	}

	inner := 1
	for d := axis + 1; d < rank; d++ {
		inner *= int(dims[d])
	}
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= int(dims[d])
	}

	out := newTensor(&e.model.Operands[op.Outputs[0]], dims)
	pos := 0
	for o := 0; o < outer; o++ {
		for _, p := range parts {
			block := int(p.dims[axis]) * inner
			copy(out.vals[pos:pos+block], p.vals[o*block:(o+1)*block])
			pos += block
		}
	}
	e.temps[op.Outputs[0]] = out
	return nil
}

func opConv2D(e *engine, op hal.Operation) error {
	// implicit padding form: input, filter, bias, padding scheme,
	// stride width, stride height, fused activation
	if len(op.Inputs) != 7 || len(op.Outputs) != 1 {
		return fmt.Errorf("want 7 inputs and 1 output, got %d and %d", len(op.Inputs), len(op.Outputs))
	}
	in, err := e.operandTensor(op.Inputs[0])
	if err != nil {
		return err
	}
	filter, err := e.operandTensor(op.Inputs[1])
	if err != nil {
		return err
	}
	bias, err := e.operandTensor(op.Inputs[2])
	if err != nil {
		return err
	}
	scheme, err := e.scalarInt(op.Inputs[3])
	if err != nil {
		return err
	}
	strideW, err := e.scalarInt(op.Inputs[4])
	if err != nil {
		return err
	}
	strideH, err := e.scalarInt(op.Inputs[5])
	if err != nil {
		return err
	}
	act, err := e.scalarInt(op.Inputs[6])
	if err != nil {
		return err
	}

	if len(in.dims) != 4 || len(filter.dims) != 4 {
		return fmt.Errorf("want NHWC input and filter, got %v and %v", in.dims, filter.dims)
	}
	if strideW <= 0 || strideH <= 0 {
		return fmt.Errorf("bad strides %dx%d", strideW, strideH)
	}
	batch, inH, inW, inC := int(in.dims[0]), int(in.dims[1]), int(in.dims[2]), int(in.dims[3])
	outC, fH, fW, fC := int(filter.dims[0]), int(filter.dims[1]), int(filter.dims[2]), int(filter.dims[3])
	if fC != inC {
		return fmt.Errorf("filter depth %d does not match input depth %d", fC, inC)
	}
	if len(bias.vals) != outC {
		return fmt.Errorf("bias holds %d values for %d output channels", len(bias.vals), outC)
	}

	var outH, outW, padTop, padLeft int
	switch scheme {
	case paddingValid:
		outH = (inH-fH)/int(strideH) + 1
		outW = (inW-fW)/int(strideW) + 1
	case paddingSame:
		outH = (inH + int(strideH) - 1) / int(strideH)
		outW = (inW + int(strideW) - 1) / int(strideW)
		padTop = max((outH-1)*int(strideH)+fH-inH, 0) / 2
		padLeft = max((outW-1)*int(strideW)+fW-inW, 0) / 2
	default:
		return fmt.Errorf("unknown padding scheme %d", scheme)
	}
	if outH <= 0 || outW <= 0 {
		return fmt.Errorf("filter %dx%d does not fit input %dx%d", fH, fW, inH, inW)
	}

	out := newTensor(&e.model.Operands[op.Outputs[0]],
		[]uint32{uint32(batch), uint32(outH), uint32(outW), uint32(outC)})
	for n := 0; n < batch; n++ {
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				for oc := 0; oc < outC; oc++ {
					acc := bias.vals[oc]
					for kh := 0; kh < fH; kh++ {
						ih := oh*int(strideH) - padTop + kh
						if ih < 0 || ih >= inH {
							continue
						}
						for kw := 0; kw < fW; kw++ {
							iw := ow*int(strideW) - padLeft + kw
							if iw < 0 || iw >= inW {
								continue
							}
							for ic := 0; ic < inC; ic++ {
								acc += in.vals[((n*inH+ih)*inW+iw)*inC+ic] *
									filter.vals[((oc*fH+kh)*fW+kw)*fC+ic]
							}
						}
					}
					out.vals[((n*outH+oh)*outW+ow)*outC+oc] = acc
				}
			}
		}
	}
	if err := activate(out, hal.FuseCode(act)); err != nil {
		return err
	}
	e.temps[op.Outputs[0]] = out
	return nil
}
