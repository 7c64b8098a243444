package hal

import (
	"errors"
	"fmt"
)

// ErrorStatus is the driver result code for prepare and execute calls.
type ErrorStatus int32

const (
	StatusNone ErrorStatus = iota
	StatusDeviceUnavailable
	StatusGeneralFailure
	StatusOutputInsufficientSize
	StatusInvalidArgument
	StatusMissedDeadlineTransient
	StatusMissedDeadlinePersistent
	StatusResourceExhaustedTransient
	StatusResourceExhaustedPersistent
)

var errorStatusNames = map[ErrorStatus]string{
	StatusNone:                        "NONE",
	StatusDeviceUnavailable:           "DEVICE_UNAVAILABLE",
	StatusGeneralFailure:              "GENERAL_FAILURE",
	StatusOutputInsufficientSize:      "OUTPUT_INSUFFICIENT_SIZE",
	StatusInvalidArgument:             "INVALID_ARGUMENT",
	StatusMissedDeadlineTransient:     "MISSED_DEADLINE_TRANSIENT",
	StatusMissedDeadlinePersistent:    "MISSED_DEADLINE_PERSISTENT",
	StatusResourceExhaustedTransient:  "RESOURCE_EXHAUSTED_TRANSIENT",
	StatusResourceExhaustedPersistent: "RESOURCE_EXHAUSTED_PERSISTENT",
}

func (s ErrorStatus) String() string {
	if name, ok := errorStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_STATUS(%d)", int32(s))
}

// StatusError is a driver failure carrying its HAL status code.
type StatusError struct {
	Op     string
	Status ErrorStatus
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Err wraps a non-NONE status into an error, or returns nil.
func Err(op string, status ErrorStatus) error {
	if status == StatusNone {
		return nil
	}
	return &StatusError{Op: op, Status: status}
}

// StatusOf extracts the HAL status from err. A nil error is NONE; an
// error that carries no status is treated as GENERAL_FAILURE.
func StatusOf(err error) ErrorStatus {
	if err == nil {
		return StatusNone
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusGeneralFailure
}

// BurstStatus is the result code of an execution over a burst channel.
// Burst channels have their own failure modes (slot mapping, channel
// state) on top of the plain execution statuses.
type BurstStatus int32

const (
	BurstOK BurstStatus = iota
	BurstOutOfMemory
	BurstIncomplete
	BurstUnexpectedNull
	BurstBadData
	BurstOpFailed
	BurstBadState
	BurstUnmappable
	BurstOutputInsufficientSize
	BurstUnavailableDevice
)

var burstStatusNames = map[BurstStatus]string{
	BurstOK:                     "OK",
	BurstOutOfMemory:            "OUT_OF_MEMORY",
	BurstIncomplete:             "INCOMPLETE",
	BurstUnexpectedNull:         "UNEXPECTED_NULL",
	BurstBadData:                "BAD_DATA",
	BurstOpFailed:               "OP_FAILED",
	BurstBadState:               "BAD_STATE",
	BurstUnmappable:             "UNMAPPABLE",
	BurstOutputInsufficientSize: "OUTPUT_INSUFFICIENT_SIZE",
	BurstUnavailableDevice:      "UNAVAILABLE_DEVICE",
}

func (s BurstStatus) String() string {
	if name, ok := burstStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BURST_STATUS(%d)", int32(s))
}

// ErrorStatus folds a burst result code onto the plain execution
// status space.
func (s BurstStatus) ErrorStatus() ErrorStatus {
	switch s {
	case BurstOK:
		return StatusNone
	case BurstOutputInsufficientSize:
		return StatusOutputInsufficientSize
	case BurstUnavailableDevice:
		return StatusDeviceUnavailable
	case BurstBadData, BurstUnexpectedNull:
		return StatusInvalidArgument
	default:
		return StatusGeneralFailure
	}
}
