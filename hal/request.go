package hal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nncert/nncert/shm"
)

// RequestArgument binds one model input or output to a byte range in a
// request pool. Dimensions, when present, override the operand
// dimensions declared by the model.
type RequestArgument struct {
	HasNoValue bool
	Location   DataLocation
	Dimensions []uint32
}

// Request carries the buffers for one execution.
type Request struct {
	Inputs  []RequestArgument
	Outputs []RequestArgument
	Pools   []*shm.Memory
}

// Close releases the request pools.
func (r *Request) Close() error {
	var errs []error
	for _, p := range r.Pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutputShape is the driver-reported shape of one output after an
// execution attempt. IsSufficient is false when the bound buffer was
// too small for the actual shape.
type OutputShape struct {
	Dimensions   []uint32
	IsSufficient bool
}

// DurationMicros is a driver-reported duration in microseconds.
type DurationMicros uint64

// TimeUnavailable marks a duration the driver did not measure.
const TimeUnavailable DurationMicros = math.MaxUint64

func (d DurationMicros) String() string {
	if d == TimeUnavailable {
		return "n/a"
	}
	return (time.Duration(d) * time.Microsecond).String()
}

// Micros converts a wall-clock duration to a reported duration,
// rounding up so short executions never report zero.
func Micros(d time.Duration) DurationMicros {
	if d <= 0 {
		return 0
	}
	return DurationMicros((d + time.Microsecond - 1) / time.Microsecond)
}

// Timing reports how long an execution spent on the accelerator and in
// the driver overall.
type Timing struct {
	OnDevice DurationMicros
	InDriver DurationMicros
}

// TimingUnavailable is what drivers report when timing was not
// requested or not measured.
var TimingUnavailable = Timing{OnDevice: TimeUnavailable, InDriver: TimeUnavailable}

func (t Timing) String() string {
	if t == TimingUnavailable {
		return "unavailable"
	}
	return fmt.Sprintf("device=%s driver=%s", t.OnDevice, t.InDriver)
}
