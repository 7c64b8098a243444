package corpus

import (
	"github.com/nncert/nncert/hal"
)

// The built-in corpus. Every model is small enough that its golden
// outputs are checked by hand: values live right next to the graph
// they exercise.

func init() {
	Register(addFloat32())
	Register(addRelaxed())
	Register(addFloat16())
	Register(addQuant8())
	Register(mulReluFloat32())
	Register(reshapeFloat32())
	Register(concatFloat32())
	Register(conv2dPerChannelQuant8())
	Register(addMismatchedActivation())
}

func scalarInt32(v int32) TestOperand {
	return TestOperand{
		Type:     hal.Int32,
		Lifetime: hal.ConstantCopy,
		Data:     FromInt32s([]int32{v}),
	}
}

// addFloat32 is elementwise ADD with no fused activation.
//
//	[1 2 3 4] + [5 6 7 8] = [6 8 10 12]
func addFloat32() *TestModel {
	return &TestModel{
		Name: "add_float32",
		Operands: []TestOperand{
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{1, 2, 3, 4})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{5, 6, 7, 8})},
			scalarInt32(int32(hal.FuseNone)),
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelOutput, Data: FromFloat32s([]float32{6, 8, 10, 12})},
		},
		Operations:    []TestOperation{{Type: hal.OpAdd, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}}},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{3},
	}
}

func addRelaxed() *TestModel {
	m := addFloat32()
	m.Name = "add_relaxed"
	m.IsRelaxed = true
	return m
}

func addFloat16() *TestModel {
	return &TestModel{
		Name: "add_float16",
		Operands: []TestOperand{
			{Type: hal.TensorFloat16, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelInput, Data: FromFloat16s([]float32{1, 2, 3, 4})},
			{Type: hal.TensorFloat16, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelInput, Data: FromFloat16s([]float32{5, 6, 7, 8})},
			scalarInt32(int32(hal.FuseNone)),
			{Type: hal.TensorFloat16, Dimensions: []uint32{1, 2, 2, 1}, Lifetime: hal.ModelOutput, Data: FromFloat16s([]float32{6, 8, 10, 12})},
		},
		Operations:    []TestOperation{{Type: hal.OpAdd, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}}},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{3},
	}
}

// addQuant8 stores real values [1 2 3 4] + [5 6 7 8] = [6 8 10 12] at
// scale 0.5, zero point 0.
func addQuant8() *TestModel {
	return &TestModel{
		Name: "add_quant8",
		Operands: []TestOperand{
			{Type: hal.TensorQuant8Asymm, Dimensions: []uint32{1, 2, 2, 1}, Scale: 0.5, Lifetime: hal.ModelInput, Data: FromQuant8s([]uint8{2, 4, 6, 8})},
			{Type: hal.TensorQuant8Asymm, Dimensions: []uint32{1, 2, 2, 1}, Scale: 0.5, Lifetime: hal.ModelInput, Data: FromQuant8s([]uint8{10, 12, 14, 16})},
			scalarInt32(int32(hal.FuseNone)),
			{Type: hal.TensorQuant8Asymm, Dimensions: []uint32{1, 2, 2, 1}, Scale: 0.5, Lifetime: hal.ModelOutput, Data: FromQuant8s([]uint8{12, 16, 20, 24})},
		},
		Operations:    []TestOperation{{Type: hal.OpAdd, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}}},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{3},
	}
}

// mulReluFloat32 chains two operations through a temporary.
//
//	[1 -2 3 -4] * [2 2 2 2] = [2 -4 6 -8], relu = [2 0 6 0]
func mulReluFloat32() *TestModel {
	return &TestModel{
		Name: "mul_relu_float32",
		Operands: []TestOperand{
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 4}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{1, -2, 3, -4})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 4}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{2, 2, 2, 2})},
			scalarInt32(int32(hal.FuseNone)),
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 4}, Lifetime: hal.TemporaryVariable},
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 4}, Lifetime: hal.ModelOutput, Data: FromFloat32s([]float32{2, 0, 6, 0})},
		},
		Operations: []TestOperation{
			{Type: hal.OpMul, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}},
			{Type: hal.OpRelu, Inputs: []uint32{3}, Outputs: []uint32{4}},
		},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{4},
	}
}

func reshapeFloat32() *TestModel {
	return &TestModel{
		Name: "reshape_float32",
		Operands: []TestOperand{
			{Type: hal.TensorFloat32, Dimensions: []uint32{2, 2}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{1, 2, 3, 4})},
			{Type: hal.TensorInt32, Dimensions: []uint32{1}, Lifetime: hal.ConstantCopy, Data: FromInt32s([]int32{4})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{4}, Lifetime: hal.ModelOutput, Data: FromFloat32s([]float32{1, 2, 3, 4})},
		},
		Operations:    []TestOperation{{Type: hal.OpReshape, Inputs: []uint32{0, 1}, Outputs: []uint32{2}}},
		InputIndexes:  []uint32{0},
		OutputIndexes: []uint32{2},
	}
}

// concatFloat32 joins two 2x1 tensors along axis 1.
func concatFloat32() *TestModel {
	return &TestModel{
		Name: "concat_float32",
		Operands: []TestOperand{
			{Type: hal.TensorFloat32, Dimensions: []uint32{2, 1}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{1, 2})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{2, 1}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{3, 4})},
			scalarInt32(1),
			{Type: hal.TensorFloat32, Dimensions: []uint32{2, 2}, Lifetime: hal.ModelOutput, Data: FromFloat32s([]float32{1, 3, 2, 4})},
		},
		Operations:    []TestOperation{{Type: hal.OpConcatenation, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}}},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{3},
	}
}

// conv2dPerChannelQuant8 is a 1x1 convolution with a per-channel
// quantized filter held in a reference pool. Real arithmetic:
// out = in * 1.0 + 1.0 across [1 2 3 4], giving [2 3 4 5].
func conv2dPerChannelQuant8() *TestModel {
	return &TestModel{
		Name: "conv2d_per_channel_quant8",
		Operands: []TestOperand{
			{Type: hal.TensorQuant8Asymm, Dimensions: []uint32{1, 2, 2, 1}, Scale: 0.5, Lifetime: hal.ModelInput, Data: FromQuant8s([]uint8{2, 4, 6, 8})},
			{
				Type:         hal.TensorQuant8SymmPerChannel,
				Dimensions:   []uint32{1, 1, 1, 1},
				Lifetime:     hal.ConstantReference,
				ChannelQuant: &hal.SymmPerChannelQuantParams{Scales: []float32{0.25}, ChannelDim: 0},
				Data:         FromInt8s([]int8{4}),
			},
			{Type: hal.TensorInt32, Dimensions: []uint32{1}, Scale: 0.125, Lifetime: hal.ConstantCopy, Data: FromInt32s([]int32{8})},
			scalarInt32(2), // padding scheme VALID
			scalarInt32(1), // stride width
			scalarInt32(1), // stride height
			scalarInt32(int32(hal.FuseNone)),
			{Type: hal.TensorQuant8Asymm, Dimensions: []uint32{1, 2, 2, 1}, Scale: 0.5, Lifetime: hal.ModelOutput, Data: FromQuant8s([]uint8{4, 6, 8, 10})},
		},
		Operations:    []TestOperation{{Type: hal.OpConv2D, Inputs: []uint32{0, 1, 2, 3, 4, 5, 6}, Outputs: []uint32{7}}},
		InputIndexes:  []uint32{0},
		OutputIndexes: []uint32{7},
	}
}

// addMismatchedActivation declares its fused activation as a float
// scalar. Drivers must reject the model at prepare time.
func addMismatchedActivation() *TestModel {
	return &TestModel{
		Name: "add_mismatched_activation",
		Operands: []TestOperand{
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{1, 2})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2}, Lifetime: hal.ModelInput, Data: FromFloat32s([]float32{3, 4})},
			{Type: hal.Float32, Lifetime: hal.ConstantCopy, Data: FromFloat32s([]float32{0})},
			{Type: hal.TensorFloat32, Dimensions: []uint32{1, 2}, Lifetime: hal.ModelOutput, Data: FromFloat32s([]float32{4, 6})},
		},
		Operations:    []TestOperation{{Type: hal.OpAdd, Inputs: []uint32{0, 1, 2}, Outputs: []uint32{3}}},
		InputIndexes:  []uint32{0, 1},
		OutputIndexes: []uint32{3},
		ExpectFailure: true,
	}
}
