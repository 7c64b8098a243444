package conformance

import (
	"fmt"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
)

// outputSizeGreaterThanOne reports whether output index of m is big
// enough to shrink. One byte buffers cannot lose a byte and still be
// a buffer.
func outputSizeGreaterThanOne(m *corpus.TestModel, index int) bool {
	return m.Operands[m.OutputIndexes[index]].Data.Size() > 1
}

// ShrinkOutput cuts one byte off an output window so the driver must
// report OUTPUT_INSUFFICIENT_SIZE.
func ShrinkOutput(index int, req *hal.Request) error {
	length := req.Outputs[index].Location.Length
	if length <= 1 {
		return fmt.Errorf("output %d window is %d bytes, cannot shrink", index, length)
	}
	req.Outputs[index].Location.Length = length - 1
	return nil
}

// ZeroOutputDimensions erases every output dimension of a lowered
// model in place, forcing the driver to infer shapes at execution
// time.
func ZeroOutputDimensions(model *hal.Model) {
	for _, idx := range model.OutputIndexes {
		dims := model.Operands[idx].Dimensions
		for i := range dims {
			dims[i] = 0
		}
	}
}
