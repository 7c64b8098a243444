// Package api implements the client side of the conformance bridge:
// JSON forms of the wire-level model and request structures, and a
// [Client] whose [Device] drives a remote driver over HTTP as if it
// were in process. The nncert command uses this package to test
// drivers served by `nncert serve`.
package api

import (
	"fmt"

	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/shm"
)

// StatusError is an error with an HTTP status code and message. When
// the failure originated in the driver under test, DriverStatus
// carries its result code.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string          `json:"error"`
	DriverStatus hal.ErrorStatus `json:"driver_status,omitempty"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the nncert server logs for details"
	}
}

type VersionResponse struct {
	Version string `json:"version"`
}

// DeviceResponse describes the driver behind a conformance server.
type DeviceResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type DataLocation struct {
	PoolIndex uint32 `json:"pool_index"`
	Offset    uint32 `json:"offset"`
	Length    uint32 `json:"length"`
}

type ChannelQuant struct {
	Scales     []float32 `json:"scales"`
	ChannelDim uint32    `json:"channel_dim"`
}

type Operand struct {
	Type          hal.OperandType     `json:"type"`
	Dimensions    []uint32            `json:"dimensions,omitempty"`
	ConsumerCount uint32              `json:"consumer_count,omitempty"`
	Scale         float32             `json:"scale,omitempty"`
	ZeroPoint     int32               `json:"zero_point,omitempty"`
	Lifetime      hal.OperandLifetime `json:"lifetime"`
	Location      DataLocation        `json:"location"`
	ChannelQuant  *ChannelQuant       `json:"channel_quant,omitempty"`
}

type Operation struct {
	Type    hal.OperationType `json:"type"`
	Inputs  []uint32          `json:"inputs"`
	Outputs []uint32          `json:"outputs"`
}

// Model is the bridge form of [hal.Model]. Pool contents travel by
// value: the server reconstructs real memory pools on its side.
type Model struct {
	Operands      []Operand   `json:"operands"`
	Operations    []Operation `json:"operations"`
	InputIndexes  []uint32    `json:"input_indexes"`
	OutputIndexes []uint32    `json:"output_indexes"`
	OperandValues []byte      `json:"operand_values,omitempty"`
	Pools         [][]byte    `json:"pools,omitempty"`
	Relaxed       bool        `json:"relaxed,omitempty"`
}

type RequestArgument struct {
	HasNoValue bool         `json:"has_no_value,omitempty"`
	Location   DataLocation `json:"location"`
	Dimensions []uint32     `json:"dimensions,omitempty"`
}

type OutputShape struct {
	Dimensions   []uint32 `json:"dimensions"`
	IsSufficient bool     `json:"is_sufficient"`
}

type Timing struct {
	OnDevice hal.DurationMicros `json:"on_device"`
	InDriver hal.DurationMicros `json:"in_driver"`
}

type PrepareRequest struct {
	Model *Model `json:"model"`
}

// PrepareResponse names the prepared model for later execute and
// close calls.
type PrepareResponse struct {
	ID string `json:"id"`
}

type SupportedRequest struct {
	Model *Model `json:"model"`
}

type SupportedResponse struct {
	Supported []bool `json:"supported"`
}

// ExecuteRequest carries one execution's arguments and the full
// content of every request pool.
type ExecuteRequest struct {
	Inputs  []RequestArgument `json:"inputs"`
	Outputs []RequestArgument `json:"outputs"`
	Pools   [][]byte          `json:"pools"`
	Measure bool              `json:"measure,omitempty"`
}

// ExecuteResponse reports the driver outcome. Pools returns the post
// execution content of every request pool, in request order, so the
// caller can see the outputs the driver wrote.
type ExecuteResponse struct {
	Status       hal.ErrorStatus `json:"status"`
	OutputShapes []OutputShape   `json:"output_shapes,omitempty"`
	Timing       Timing          `json:"timing"`
	Pools        [][]byte        `json:"pools,omitempty"`
}

// BurstResponse names an open burst channel.
type BurstResponse struct {
	ID string `json:"id"`
}

// BurstPool references one request pool by burst slot. Data carries
// the pool content the first time a slot is presented and is omitted
// afterwards: the server keeps slots cached for the channel lifetime.
type BurstPool struct {
	Slot int32  `json:"slot"`
	Size uint32 `json:"size"`
	Data []byte `json:"data,omitempty"`
}

type BurstExecuteRequest struct {
	Inputs  []RequestArgument `json:"inputs"`
	Outputs []RequestArgument `json:"outputs"`
	Pools   []BurstPool       `json:"pools"`
	Measure bool              `json:"measure,omitempty"`
}

type BurstExecuteResponse struct {
	Status       hal.BurstStatus `json:"status"`
	OutputShapes []OutputShape   `json:"output_shapes,omitempty"`
	Timing       Timing          `json:"timing"`
	Pools        [][]byte        `json:"pools,omitempty"`
}

// NewModel converts a wire model into its bridge form, copying pool
// contents out of shared memory.
func NewModel(m *hal.Model) *Model {
	operands := make([]Operand, len(m.Operands))
	for i, op := range m.Operands {
		operands[i] = Operand{
			Type:          op.Type,
			Dimensions:    op.Dimensions,
			ConsumerCount: op.NumberOfConsumers,
			Scale:         op.Scale,
			ZeroPoint:     op.ZeroPoint,
			Lifetime:      op.Lifetime,
			Location: DataLocation{
				PoolIndex: op.Location.PoolIndex,
				Offset:    op.Location.Offset,
				Length:    op.Location.Length,
			},
		}
		if op.ChannelQuant != nil {
			operands[i].ChannelQuant = &ChannelQuant{
				Scales:     op.ChannelQuant.Scales,
				ChannelDim: op.ChannelQuant.ChannelDim,
			}
		}
	}

	operations := make([]Operation, len(m.Operations))
	for i, op := range m.Operations {
		operations[i] = Operation{Type: op.Type, Inputs: op.Inputs, Outputs: op.Outputs}
	}

	pools := make([][]byte, len(m.Pools))
	for i, pool := range m.Pools {
		pools[i] = append([]byte(nil), pool.Bytes()...)
	}

	return &Model{
		Operands:      operands,
		Operations:    operations,
		InputIndexes:  m.InputIndexes,
		OutputIndexes: m.OutputIndexes,
		OperandValues: m.OperandValues,
		Pools:         pools,
		Relaxed:       m.RelaxFloat32ToFloat16,
	}
}

// HALModel reconstructs the wire model, allocating a memory pool for
// each transferred pool content. The caller owns the pools.
func (m *Model) HALModel() (*hal.Model, error) {
	operands := make([]hal.Operand, len(m.Operands))
	for i, op := range m.Operands {
		operands[i] = hal.Operand{
			Type:              op.Type,
			Dimensions:        op.Dimensions,
			NumberOfConsumers: op.ConsumerCount,
			Scale:             op.Scale,
			ZeroPoint:         op.ZeroPoint,
			Lifetime:          op.Lifetime,
			Location: hal.DataLocation{
				PoolIndex: op.Location.PoolIndex,
				Offset:    op.Location.Offset,
				Length:    op.Location.Length,
			},
		}
		if op.ChannelQuant != nil {
			operands[i].ChannelQuant = &hal.SymmPerChannelQuantParams{
				Scales:     op.ChannelQuant.Scales,
				ChannelDim: op.ChannelQuant.ChannelDim,
			}
		}
	}

	operations := make([]hal.Operation, len(m.Operations))
	for i, op := range m.Operations {
		operations[i] = hal.Operation{Type: op.Type, Inputs: op.Inputs, Outputs: op.Outputs}
	}

	pools, err := allocatePools("model constants", m.Pools)
	if err != nil {
		return nil, err
	}

	return &hal.Model{
		Operands:              operands,
		Operations:            operations,
		InputIndexes:          m.InputIndexes,
		OutputIndexes:         m.OutputIndexes,
		OperandValues:         m.OperandValues,
		Pools:                 pools,
		RelaxFloat32ToFloat16: m.Relaxed,
	}, nil
}

// NewExecuteRequest converts a request into its bridge form, copying
// every pool's content.
func NewExecuteRequest(req *hal.Request, measure bool) *ExecuteRequest {
	pools := make([][]byte, len(req.Pools))
	for i, pool := range req.Pools {
		pools[i] = append([]byte(nil), pool.Bytes()...)
	}
	return &ExecuteRequest{
		Inputs:  newArguments(req.Inputs),
		Outputs: newArguments(req.Outputs),
		Pools:   pools,
		Measure: measure,
	}
}

// HALRequest reconstructs the request, allocating a memory pool per
// transferred pool content. The caller owns the pools.
func (r *ExecuteRequest) HALRequest() (*hal.Request, error) {
	pools, err := allocatePools("request", r.Pools)
	if err != nil {
		return nil, err
	}
	return &hal.Request{
		Inputs:  halArguments(r.Inputs),
		Outputs: halArguments(r.Outputs),
		Pools:   pools,
	}, nil
}

// HALRequest builds the wire request over pools already resolved from
// the channel's slot table.
func (r *BurstExecuteRequest) HALRequest(pools []*shm.Memory) *hal.Request {
	return &hal.Request{
		Inputs:  halArguments(r.Inputs),
		Outputs: halArguments(r.Outputs),
		Pools:   pools,
	}
}

// Apply copies the post execution pool contents back into the local
// request pools and returns the normalized outcome.
func (r *ExecuteResponse) Apply(req *hal.Request) (hal.Execution, error) {
	if err := applyPools(req, r.Pools); err != nil {
		return hal.Execution{}, err
	}
	return hal.Execution{
		Status:       r.Status,
		OutputShapes: halOutputShapes(r.OutputShapes),
		Timing:       hal.Timing{OnDevice: r.Timing.OnDevice, InDriver: r.Timing.InDriver},
	}, nil
}

func newArguments(args []hal.RequestArgument) []RequestArgument {
	out := make([]RequestArgument, len(args))
	for i, arg := range args {
		out[i] = RequestArgument{
			HasNoValue: arg.HasNoValue,
			Location: DataLocation{
				PoolIndex: arg.Location.PoolIndex,
				Offset:    arg.Location.Offset,
				Length:    arg.Location.Length,
			},
			Dimensions: arg.Dimensions,
		}
	}
	return out
}

func halArguments(args []RequestArgument) []hal.RequestArgument {
	out := make([]hal.RequestArgument, len(args))
	for i, arg := range args {
		out[i] = hal.RequestArgument{
			HasNoValue: arg.HasNoValue,
			Location: hal.DataLocation{
				PoolIndex: arg.Location.PoolIndex,
				Offset:    arg.Location.Offset,
				Length:    arg.Location.Length,
			},
			Dimensions: arg.Dimensions,
		}
	}
	return out
}

// NewOutputShapes converts driver-reported shapes into bridge form.
func NewOutputShapes(shapes []hal.OutputShape) []OutputShape {
	if shapes == nil {
		return nil
	}
	out := make([]OutputShape, len(shapes))
	for i, s := range shapes {
		out[i] = OutputShape{Dimensions: s.Dimensions, IsSufficient: s.IsSufficient}
	}
	return out
}

func halOutputShapes(shapes []OutputShape) []hal.OutputShape {
	if shapes == nil {
		return nil
	}
	out := make([]hal.OutputShape, len(shapes))
	for i, s := range shapes {
		out[i] = hal.OutputShape{Dimensions: s.Dimensions, IsSufficient: s.IsSufficient}
	}
	return out
}

// NewTiming converts driver-reported timing into bridge form.
func NewTiming(t hal.Timing) Timing {
	return Timing{OnDevice: t.OnDevice, InDriver: t.InDriver}
}

func allocatePools(name string, contents [][]byte) ([]*shm.Memory, error) {
	pools := make([]*shm.Memory, 0, len(contents))
	for i, content := range contents {
		pool, err := shm.Allocate(fmt.Sprintf("%s %d", name, i), len(content))
		if err != nil {
			for _, p := range pools {
				p.Close()
			}
			return nil, err
		}
		copy(pool.Bytes(), content)
		pools = append(pools, pool)
	}
	return pools, nil
}

func applyPools(req *hal.Request, contents [][]byte) error {
	if len(contents) == 0 {
		return nil
	}
	if len(contents) != len(req.Pools) {
		return fmt.Errorf("server returned %d pools for a %d pool request", len(contents), len(req.Pools))
	}
	for i, content := range contents {
		if len(content) != req.Pools[i].Size() {
			return fmt.Errorf("server returned %d bytes for pool %d of %d bytes", len(content), i, req.Pools[i].Size())
		}
		copy(req.Pools[i].Bytes(), content)
	}
	return nil
}
