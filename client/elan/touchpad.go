// Package elan drives ELAN touchpads attached over SMBus. It performs the
// power-on handshake and fetches a raw report whenever the touchpad raises
// a host notify.
package elan

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"smbmux/logging"
	"smbmux/smbus"
)

//go:generate go run go.uber.org/mock/mockgen -destination "mock_bus_test.go" -package $GOPACKAGE -write_package_comment=false smbmux/client/elan Bus

const (
	CmdHelloPacket = 0xA7
	CmdEnable      = 0x20
	CmdReportQuery = 0xB5

	HelloLength  = 5
	ReportLength = 32

	StartAttempts = 3
	RetryDelay    = 30 * time.Millisecond
)

var helloPacket = bytes.Repeat([]byte{0x55}, HelloLength)

var (
	// ErrHelloLength means the hello packet had the wrong size
	ErrHelloLength = fmt.Errorf("elan: hello packet length: %w", smbus.ErrFailed)
	// ErrHelloMismatch means the hello packet did not match the ELAN signature
	ErrHelloMismatch = fmt.Errorf("elan: hello packet mismatch: %w", smbus.ErrNoResponse)
)

// Bus is the part of an SMBus device the touchpad needs. Both
// *smbus.Device and *smbus.Client satisfy it.
type Bus interface {
	ReadBlockData(ctx context.Context, cmd uint8) ([]byte, error)
	WriteByte(ctx context.Context, v uint8) error
}

// Touchpad is one ELAN touchpad
type Touchpad struct {
	bus     Bus
	log     *logging.Logger
	report  func([]byte)
	timeout time.Duration

	// Sleep waits between start attempts
	Sleep func(time.Duration)
}

var _ smbus.NotifyConsumer = (*Touchpad)(nil)

// New creates a touchpad on bus. report receives each raw report fetched
// after a host notify and may be nil.
func New(bus Bus, log *logging.Logger, report func([]byte)) *Touchpad {
	return &Touchpad{
		bus:     bus,
		log:     log,
		report:  report,
		timeout: time.Second,
		Sleep:   time.Sleep,
	}
}

// Initialize checks the hello packet and enables the touchpad
func (t *Touchpad) Initialize(ctx context.Context) error {
	hello, err := t.bus.ReadBlockData(ctx, CmdHelloPacket)
	if err != nil {
		return err
	}
	if len(hello) != HelloLength {
		t.log.Errorf("hello packet length fail: %d", len(hello))
		return ErrHelloLength
	}
	if !bytes.Equal(hello, helloPacket) {
		t.log.Errorf("hello packet fail [% x]", hello)
		return ErrHelloMismatch
	}

	if err := t.bus.WriteByte(ctx, CmdEnable); err != nil {
		t.log.Errorf("failed to enable touchpad: %v", err)
		return err
	}
	return nil
}

// Start runs Initialize up to StartAttempts times, RetryDelay apart, and
// returns the last error
func (t *Touchpad) Start(ctx context.Context) error {
	var err error
	for i := 0; i < StartAttempts; i++ {
		if i > 0 {
			t.Sleep(RetryDelay)
		}
		err = t.Initialize(ctx)
		t.log.Debugf("initialize attempt %d: %v", i+1, err)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// HandleHostNotify fetches the pending report
func (t *Touchpad) HandleHostNotify(n smbus.HostNotify) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	data, err := t.bus.ReadBlockData(ctx, CmdReportQuery)
	if err != nil {
		t.log.Errorf("report query after notify 0x%04x: %v", n.Data, err)
		return
	}
	if t.report != nil {
		t.report(data)
	}
}

// Bind starts the touchpad on an attached device and subscribes it to the
// device's host notify events
func Bind(ctx context.Context, dev *smbus.Device, log *logging.Logger, report func([]byte)) (*Touchpad, error) {
	t := New(dev, log, report)
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	dev.SetConsumer(t)
	return t, nil
}
