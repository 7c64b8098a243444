package conformance

import (
	"fmt"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/shm"
)

// Requests carry two pools: all inputs packed in the first, all
// outputs in the second.
const (
	requestInputPool  = 0
	requestOutputPool = 1
)

// BuildRequest allocates the request pools for one execution of m and
// loads the stimulus inputs. Output windows are sized from the golden
// buffers; zero-sized outputs still get a one byte window so the
// driver has something to report against. The caller owns the request
// and must Close it.
func BuildRequest(m *corpus.TestModel) (*hal.Request, error) {
	inputs := make([]hal.RequestArgument, len(m.InputIndexes))
	var inputSize uint32
	for i, idx := range m.InputIndexes {
		op := &m.Operands[idx]
		if op.Data.Size() == 0 {
			inputs[i] = hal.RequestArgument{HasNoValue: true}
			continue
		}

		inputs[i] = hal.RequestArgument{
			Location: hal.DataLocation{PoolIndex: requestInputPool, Offset: inputSize, Length: op.Data.Size()},
		}
		inputSize += op.Data.AlignedSize()
	}

	outputs := make([]hal.RequestArgument, len(m.OutputIndexes))
	var outputSize uint32
	for i, idx := range m.OutputIndexes {
		op := &m.Operands[idx]
		length := max(op.Data.Size(), 1)

		outputs[i] = hal.RequestArgument{
			Location: hal.DataLocation{PoolIndex: requestOutputPool, Offset: outputSize, Length: length},
		}
		outputSize += corpus.Align(length)
	}

	inPool, err := shm.Allocate(m.Name+" input", int(max(inputSize, 1)))
	if err != nil {
		return nil, err
	}
	outPool, err := shm.Allocate(m.Name+" output", int(max(outputSize, 1)))
	if err != nil {
		inPool.Close()
		return nil, err
	}

	for i, idx := range m.InputIndexes {
		if inputs[i].HasNoValue {
			continue
		}
		copy(inPool.Bytes()[inputs[i].Location.Offset:], m.Operands[idx].Data.Bytes())
	}

	return &hal.Request{
		Inputs:  inputs,
		Outputs: outputs,
		Pools:   []*shm.Memory{inPool, outPool},
	}, nil
}

// OutputBuffers reads back the output windows of an executed request.
func OutputBuffers(req *hal.Request) ([]*corpus.Buffer, error) {
	buffers := make([]*corpus.Buffer, len(req.Outputs))
	for i, arg := range req.Outputs {
		if arg.Location.PoolIndex >= uint32(len(req.Pools)) {
			return nil, fmt.Errorf("output %d references pool %d of %d", i, arg.Location.PoolIndex, len(req.Pools))
		}

		window, err := req.Pools[arg.Location.PoolIndex].Slice(int(arg.Location.Offset), int(arg.Location.Length))
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		buffers[i] = corpus.FromBytes(window)
	}
	return buffers, nil
}
