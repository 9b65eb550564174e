package smbus

import (
	"time"

	"smbmux/logging"
)

// Defaults applied to zero Config fields
const (
	DefaultRetries      = 3
	DefaultTimeout      = 200 * time.Millisecond
	DefaultPollInterval = 250 * time.Microsecond
	DefaultPollLimit    = 400
)

// killDelay is the pause between setting and clearing HSTCNT.KILL
const killDelay = time.Millisecond

// Config holds controller settings
type Config struct {
	Name string

	// Base is the I/O base of the register window. Zero probes SMBBA.
	Base uint16

	Features Feature

	// Retries is the number of extra attempts after an arbitration loss
	Retries int

	// Timeout bounds an interrupt-driven wait
	Timeout time.Duration

	// PollInterval and PollLimit bound a polled wait
	PollInterval time.Duration
	PollLimit    int

	// Devices are attached when the controller starts
	Devices []DeviceConfig

	// Delay is the sleep primitive, time.Sleep when nil
	Delay func(time.Duration)

	Logger *logging.Logger
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "i801"
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollLimit <= 0 {
		c.PollLimit = DefaultPollLimit
	}
	if c.Delay == nil {
		c.Delay = time.Sleep
	}
}
