package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nncert/nncert/hal"
)

// Device is a driver reached through a conformance server. It
// implements [hal.Device], so the suite drives it exactly like an in
// process driver.
type Device struct {
	client *Client
	name   string
}

// Device connects to the server and returns its driver.
func (c *Client) Device(ctx context.Context) (*Device, error) {
	var resp DeviceResponse
	if err := c.do(ctx, http.MethodGet, "/api/device", nil, &resp); err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.base, err)
	}
	return &Device{client: c, name: resp.Name}, nil
}

func (d *Device) Name() string { return d.name }

func (d *Device) SupportedOperations(model *hal.Model) ([]bool, error) {
	var resp SupportedResponse
	err := d.client.do(context.Background(), http.MethodPost, "/api/supported", &SupportedRequest{Model: NewModel(model)}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Supported, nil
}

func (d *Device) PrepareModel(ctx context.Context, model *hal.Model) (hal.PreparedModel, error) {
	var resp PrepareResponse
	err := d.client.do(ctx, http.MethodPost, "/api/prepare", &PrepareRequest{Model: NewModel(model)}, &resp)
	if err != nil {
		return nil, driverError("prepare", err)
	}
	return &preparedModel{client: d.client, id: resp.ID}, nil
}

// driverError surfaces a driver result code carried in a server error
// response as a [hal.StatusError], so callers can tell a driver
// rejection from bridge breakage.
func driverError(op string, err error) error {
	var se StatusError
	if errors.As(err, &se) && se.DriverStatus != hal.StatusNone {
		return &hal.StatusError{Op: op, Status: se.DriverStatus}
	}
	return err
}

type preparedModel struct {
	client *Client
	id     string
}

func (p *preparedModel) ExecuteSync(ctx context.Context, req *hal.Request, measure bool) (hal.Execution, error) {
	var resp ExecuteResponse
	err := p.client.do(ctx, http.MethodPost, fmt.Sprintf("/api/models/%s/execute", p.id), NewExecuteRequest(req, measure), &resp)
	if err != nil {
		return hal.Execution{}, err
	}
	return resp.Apply(req)
}

// ExecuteAsync bridges the asynchronous call path over the blocking
// execute endpoint: the call returns once the request is on its way
// and the outcome lands on the callback. Bridge breakage mid flight
// surfaces as a GENERAL_FAILURE outcome, since there is no longer a
// launch to fail.
func (p *preparedModel) ExecuteAsync(ctx context.Context, req *hal.Request, measure bool, cb *hal.ExecutionCallback) error {
	go func() {
		exec, err := p.ExecuteSync(ctx, req, measure)
		if err != nil {
			slog.Warn("bridged async execution", "model", p.id, "error", err)
			exec = hal.Execution{Status: hal.StatusGeneralFailure, Timing: hal.TimingUnavailable}
		}
		cb.Notify(exec)
	}()
	return nil
}

func (p *preparedModel) OpenBurst(ctx context.Context) (hal.Burst, error) {
	var resp BurstResponse
	err := p.client.do(ctx, http.MethodPost, fmt.Sprintf("/api/models/%s/burst", p.id), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &burstChannel{client: p.client, id: resp.ID, sent: make(map[int32]bool)}, nil
}

func (p *preparedModel) Close() error {
	return p.client.do(context.Background(), http.MethodDelete, fmt.Sprintf("/api/models/%s", p.id), nil, nil)
}

// burstChannel tracks which slots the server has seen, sending each
// pool's content only on first sight. That keeps the bridge honest
// about the burst contract: repeated executions over the same pools
// ride the server's slot cache.
type burstChannel struct {
	client *Client
	id     string
	sent   map[int32]bool
}

func (b *burstChannel) Execute(ctx context.Context, req *hal.Request, slots []int32, measure bool) (hal.BurstStatus, []hal.OutputShape, hal.Timing, error) {
	if len(slots) != len(req.Pools) {
		return hal.BurstBadData, nil, hal.TimingUnavailable, nil
	}

	breq := &BurstExecuteRequest{
		Inputs:  newArguments(req.Inputs),
		Outputs: newArguments(req.Outputs),
		Pools:   make([]BurstPool, len(req.Pools)),
		Measure: measure,
	}
	for i, pool := range req.Pools {
		slot := slots[i]
		breq.Pools[i] = BurstPool{Slot: slot, Size: uint32(pool.Size())}
		if !b.sent[slot] {
			breq.Pools[i].Data = append([]byte(nil), pool.Bytes()...)
		}
	}

	var resp BurstExecuteResponse
	err := b.client.do(ctx, http.MethodPost, fmt.Sprintf("/api/burst/%s/execute", b.id), breq, &resp)
	if err != nil {
		return hal.BurstOpFailed, nil, hal.TimingUnavailable, err
	}

	// the server holds the slots it accepted for the channel lifetime
	for _, slot := range slots {
		b.sent[slot] = true
	}

	if err := applyPools(req, resp.Pools); err != nil {
		return hal.BurstOpFailed, nil, hal.TimingUnavailable, err
	}
	timing := hal.Timing{OnDevice: resp.Timing.OnDevice, InDriver: resp.Timing.InDriver}
	return resp.Status, halOutputShapes(resp.OutputShapes), timing, nil
}

func (b *burstChannel) Close() error {
	return b.client.do(context.Background(), http.MethodDelete, fmt.Sprintf("/api/burst/%s", b.id), nil, nil)
}
