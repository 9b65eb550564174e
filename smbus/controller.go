// Package smbus drives Intel ICH/PCH SMBus host controllers.
//
// A Controller owns one register window. Every operation is funneled
// through a single work queue, so at most one transaction is in flight;
// its completion comes either from the interrupt handler or from polling
// HSTSTS. Attached devices are kept in a registry that the interrupt
// handler consults to route host notify events to the device's consumer.
package smbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smbmux/i801"
	"smbmux/logging"
	"smbmux/regio"
)

// Scan range of a default probe, as used by i2cdetect
const (
	ScanFirst = 0x08
	ScanLast  = 0x77
)

// byteCursor tracks a byte-by-byte block transfer advanced by the
// interrupt handler
type byteCursor struct {
	cmd        uint8 // HSTCNT value, INTREN included
	read       bool
	smbusBlock bool // the first byte read is the block length
	count      int
	len        int
	data       *Data
	err        error
}

// Controller is one SMBus host adapter
type Controller struct {
	cfg  Config
	log  *logging.Logger
	regs regio.Regs
	pci  regio.ConfigSpace
	line regio.Interrupt

	features   Feature
	origHstcfg uint8
	origSlvcmd uint8

	// irq masks the interrupt handler. The handler runs with it held, and
	// status, cursor and registry mutations are only made under it.
	irq    sync.Mutex
	status uint8
	cursor *byteCursor
	wake   chan struct{}

	devices DeviceList
	trace   traceRing

	mu    sync.Mutex
	queue *workQueue
}

// New creates a controller on the given register bus, config space and
// interrupt line. A nil line means polling.
func New(bus regio.Bus, pci regio.ConfigSpace, line regio.Interrupt, cfg Config) *Controller {
	cfg.applyDefaults()
	if line == nil {
		line = regio.NoInterrupt{}
	}
	return &Controller{
		cfg:  cfg,
		log:  cfg.Logger,
		regs: regio.Regs{Bus: bus, Base: cfg.Base},
		pci:  pci,
		line: line,
		wake: make(chan struct{}, 1),
	}
}

func (c *Controller) Name() string { return c.cfg.Name }

// Base returns the I/O base in use, which Start may have probed
func (c *Controller) Base() uint16 { return c.regs.Base }

// Features returns the capabilities in effect after Start
func (c *Controller) Features() Feature { return c.features }

// Start brings the controller up: it checks that the host is enabled,
// saves the configuration it changes, selects interrupt or polled
// completion, enables host notify and attaches the configured devices.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.queue != nil {
		c.mu.Unlock()
		return fmt.Errorf("smbus %s: already started", c.cfg.Name)
	}

	hostc := c.pci.ReadConfig8(i801.CfgHSTCFG)
	if hostc&i801.HstcfgHSTEn == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: HSTCFG 0x%02x", ErrDisabled, hostc)
	}
	c.origHstcfg = hostc
	// the interrupt handler logs through Async and must not wait on output
	c.log.StartAsync()

	if c.regs.Base == 0 {
		base := regio.ReadConfig16(c.pci, i801.CfgSMBBA) & 0xfffe
		if base == 0 {
			c.mu.Unlock()
			return fmt.Errorf("%w: SMBus base address uninitialized", ErrDisabled)
		}
		c.regs.Base = base
	}

	if hostc&i801.HstcfgI2CEn != 0 {
		c.log.Infof("disabling I2C mode left enabled by firmware")
		c.pci.WriteConfig8(i801.CfgHSTCFG, hostc&^i801.HstcfgI2CEn)
	}

	c.features = c.cfg.Features
	if c.features&(FeaturePEC|FeatureBlockBuffer) != 0 {
		c.regs.Clear(i801.AUXCTL, i801.AuxCtlCRC|i801.AuxCtlE32B)
	}
	if hostc&i801.HstcfgSMIEn != 0 {
		c.log.Infof("SMI# routed, using polling")
		c.features &^= FeatureIRQ
	}
	if c.features&FeatureIRQ != 0 {
		if err := c.line.Enable(c.HandleInterrupt); err != nil {
			c.log.Infof("no interrupt (%v), using polling", err)
			c.features &^= FeatureIRQ
		}
	}
	if c.features&FeatureIRQ == 0 {
		c.features &^= FeatureHostNotify
	}
	if c.features&FeatureHostNotify != 0 {
		c.enableHostNotify()
	}

	c.queue = newWorkQueue()
	c.mu.Unlock()

	c.log.Infof("SMBus at 0x%04x, features %s", c.regs.Base, c.features)
	return c.Publish(ctx, c.cfg.Devices)
}

// Stop detaches every device, restores the saved configuration and stops
// the work queue. Transfers issued afterwards fail with ErrClosed.
func (c *Controller) Stop() error {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	if q == nil {
		return nil
	}

	err := q.Do(context.Background(), func() error {
		var removed []*Device
		c.irq.Lock()
		c.devices.Teardown(func(d *Device) { removed = append(removed, d) })
		c.irq.Unlock()
		for _, d := range removed {
			d.release()
		}
		if c.features&FeatureHostNotify != 0 {
			c.regs.Write(i801.SLVCMD, c.origSlvcmd)
		}
		c.pci.WriteConfig8(i801.CfgHSTCFG, c.origHstcfg)
		return nil
	})
	if c.features&FeatureIRQ != 0 {
		c.line.Disable()
	}
	q.stop()
	c.log.Infof("stopped")
	return err
}

// run executes fn on the work queue
func (c *Controller) run(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()
	if q == nil {
		return ErrClosed
	}
	return q.Do(ctx, fn)
}

// Attach creates the device handle for addr and registers it for host
// notify routing
func (c *Controller) Attach(ctx context.Context, addr uint16, flags ClientFlags, props map[string]string) (*Device, error) {
	if addr > 0x7f || flags&FlagTenBit != 0 {
		return nil, &OpError{Op: "attach", Addr: addr, Err: ErrUnsupported}
	}
	var dev *Device
	err := c.run(ctx, func() error {
		d := newDevice(c, addr, flags, props)
		c.irq.Lock()
		err := c.devices.Insert(d)
		c.irq.Unlock()
		if err != nil {
			d.release()
			return err
		}
		dev = d
		return nil
	})
	if err != nil {
		return nil, &OpError{Op: "attach", Addr: addr, Err: err}
	}
	c.log.Debugf("attached 0x%02x (%s)", addr, flags)
	return dev, nil
}

// Detach unregisters the device at addr. Host notify events already
// queued for it are still delivered.
func (c *Controller) Detach(ctx context.Context, addr uint16) error {
	err := c.run(ctx, func() error {
		c.irq.Lock()
		d, err := c.devices.Remove(addr)
		c.irq.Unlock()
		if err != nil {
			return err
		}
		d.release()
		return nil
	})
	if err != nil {
		return &OpError{Op: "detach", Addr: addr, Err: err}
	}
	c.log.Debugf("detached 0x%02x", addr)
	return nil
}

// Publish attaches each configured device, continuing past failures
func (c *Controller) Publish(ctx context.Context, devs []DeviceConfig) error {
	var errs []error
	for _, dc := range devs {
		if _, err := c.Attach(ctx, dc.Addr, dc.Flags, dc.Properties); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Device returns the attached device at addr, or nil
func (c *Controller) Device(addr uint16) *Device {
	return c.devices.Lookup(addr)
}

// Devices returns the attached devices in attach order
func (c *Controller) Devices() []*Device {
	return c.devices.snapshot()
}

// Client returns an unregistered handle for addr
func (c *Controller) Client(addr uint16, flags ClientFlags) *Client {
	return &Client{Adapter: c, Addr: addr, Flags: flags}
}

// Scan probes first..last on the controller
func (c *Controller) Scan(ctx context.Context, first, last uint16) ([]uint16, error) {
	return Scan(ctx, c, first, last)
}

// Scan probes first..last through t and returns the addresses that
// answered. EEPROM and write-protect ranges are probed with a receive byte
// rather than a quick write, like i2cdetect does.
func Scan(ctx context.Context, t Transferer, first, last uint16) ([]uint16, error) {
	var found []uint16
	for addr := first; addr <= last; addr++ {
		req := &Request{Addr: addr, Dir: Write, Protocol: ProtoQuick}
		if (addr >= 0x30 && addr <= 0x37) || (addr >= 0x50 && addr <= 0x5f) {
			req.Dir, req.Protocol = Read, ProtoByte
		}
		err := t.Transfer(ctx, req)
		switch {
		case err == nil:
			found = append(found, addr)
		case errors.Is(err, ErrNoResponse):
		default:
			return found, err
		}
	}
	return found, nil
}

func (c *Controller) enableHostNotify() {
	c.origSlvcmd = c.regs.Read(i801.SLVCMD)
	c.regs.Write(i801.SLVCMD, c.origSlvcmd|i801.SlvCmdHostNotifyIntEn)
	// clear any notification latched before we were listening
	c.regs.Write(i801.SLVSTS, i801.SlvStsHostNotify)
}
