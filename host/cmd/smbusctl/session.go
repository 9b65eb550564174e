package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"smbmux/config"
	"smbmux/host/serial"
	"smbmux/logging"
	"smbmux/regio"
	"smbmux/sim"
	"smbmux/smbus"
)

// simBase is the I/O window the simulated controller decodes
const simBase = 0xf040

// session is an open backend. ctrl is nil for i2cdev, which has no
// controller of its own; hw is set only for the simulator.
type session struct {
	cfg  *config.Config
	log  *logging.Logger
	t    smbus.Transferer
	ctrl *smbus.Controller
	hw   *sim.Controller

	trace   io.Writer
	closers []func()
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if a.opts.configPath != "" {
		c, err := config.Load(a.opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	files := a.opts.envFiles
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if err := cfg.ApplyEnv(files...); err != nil {
		return nil, err
	}
	cfg.Override(a.opts.backend, a.opts.device)
	return cfg, cfg.Validate()
}

func (a *app) open(ctx context.Context, stderr io.Writer) (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.Std("smbusctl", cfg.Level())
	s := &session{cfg: cfg, log: log}
	if a.opts.trace {
		s.trace = stderr
	}

	if cfg.Backend.Kind == config.BackendI2CDev {
		t, err := openI2CDev(cfg.Backend, log)
		if err != nil {
			return nil, err
		}
		s.t = t
		return s, nil
	}

	var (
		bus  regio.Bus
		pci  regio.ConfigSpace
		line regio.Interrupt
	)
	switch cfg.Backend.Kind {
	case config.BackendSim:
		hw := sim.New(simBase)
		populate(hw)
		s.hw = hw
		s.closers = append(s.closers, hw.Close)
		bus, pci, line = hw, hw, hw
	case config.BackendDevPort:
		b, p, l, closer, err := openDevPort(cfg.Backend, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closer)
		bus, pci, line = b, p, l
	case config.BackendSerial:
		pcfg := serial.DefaultConfig(cfg.Backend.Device)
		pcfg.Baud = cfg.Backend.Baud
		port, err := serial.Open(pcfg)
		if err != nil {
			return nil, err
		}
		remote := regio.NewRemote(port, log.With("link"))
		s.closers = append(s.closers, func() { remote.Close() })
		bus, pci, line = remote, remote, remote
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}

	ccfg, err := cfg.ControllerConfig(log.With(cfg.Name))
	if err != nil {
		s.close()
		return nil, err
	}
	ctrl := smbus.New(bus, pci, line, ccfg)
	if err := ctrl.Start(ctx); err != nil {
		// a failed Publish leaves the controller running
		if !errors.Is(err, smbus.ErrAddressInUse) {
			s.close()
			return nil, err
		}
		log.Errorf("publish: %v", err)
	}
	s.ctrl = ctrl
	s.t = ctrl
	return s, nil
}

func (s *session) close() {
	if s.ctrl != nil {
		if s.trace != nil {
			s.ctrl.DumpTrace(func(line string) { fmt.Fprintln(s.trace, line) })
		}
		if err := s.ctrl.Stop(); err != nil {
			s.log.Errorf("stop: %v", err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.log.Close()
}

// client returns a handle for addr, preferring an attached device so its
// configured flags apply
func (s *session) client(addr uint16, flags smbus.ClientFlags) *smbus.Client {
	if s.ctrl != nil {
		if dev := s.ctrl.Device(addr); dev != nil {
			c := dev.Client
			c.Flags |= flags
			return &c
		}
	}
	return &smbus.Client{Adapter: s.t, Addr: addr, Flags: flags}
}

// populate places the demo devices on a simulated bus
func populate(hw *sim.Controller) {
	tp := hw.AddTarget(0x15)
	tp.SetBlock(0xA7, []byte{0x55, 0x55, 0x55, 0x55, 0x55})
	tp.SetBlock(0xB5, []byte{0x5d, 0x01, 0x40, 0x02, 0x80, 0x00})

	temp := hw.AddTarget(0x2c)
	temp.SetWord(0x00, 0x1a80)

	eeprom := hw.AddTarget(0x50)
	for i := 0; i < 16; i++ {
		eeprom.SetReg(uint8(i), uint8(0x80+i))
	}
	eeprom.SetReceiveByte(0x80)

	accel := hw.AddTarget(0x53)
	accel.SetReg(0x00, 0xe5)
	accel.SetBlock(0x32, []byte{0x04, 0x00, 0xfc, 0xff, 0x00, 0x01})
}
