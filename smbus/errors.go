package smbus

import (
	"errors"
	"fmt"
)

// Transfer outcomes. Each maps onto a Linux errno, see Errno.
var (
	ErrBusy            = errors.New("smbus: controller busy")
	ErrTimeout         = errors.New("smbus: transaction timed out")
	ErrFailed          = errors.New("smbus: transaction failed")
	ErrNoResponse      = errors.New("smbus: no response from device")
	ErrProtocol        = errors.New("smbus: invalid block length")
	ErrBadMessage      = errors.New("smbus: PEC error")
	ErrUnsupported     = errors.New("smbus: operation not supported")
	ErrArbitrationLost = errors.New("smbus: lost arbitration")
)

// Registry and lifecycle errors
var (
	ErrAddressInUse = errors.New("smbus: address already attached")
	ErrNoDevice     = errors.New("smbus: no device at address")
	ErrDisabled     = errors.New("smbus: host controller disabled")
	ErrClosed       = errors.New("smbus: controller not running")
)

// OpError records the transfer and address an error came from
type OpError struct {
	Op   string
	Addr uint16
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("smbus %s @0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
