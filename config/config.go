// Package config loads the smbusctl JSON configuration, applies defaults and
// environment overrides, and turns it into controller settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smbmux/host/serial"
	"smbmux/logging"
	"smbmux/smbus"
)

// Backend kinds
const (
	BackendSim     = "sim"
	BackendDevPort = "devport"
	BackendSerial  = "serial"
	BackendI2CDev  = "i2cdev"
)

// Environment variables read by ApplyEnv
const (
	EnvBackend   = "SMBUS_BACKEND"
	EnvDevice    = "SMBUS_DEVICE"
	EnvPCIConfig = "SMBUS_PCI_CONFIG"
	EnvRetries   = "SMBUS_RETRIES"
	EnvTimeoutMS = "SMBUS_TIMEOUT_MS"
	EnvLogLevel  = "SMBUS_LOG_LEVEL"
)

// Backend selects how registers are reached
type Backend struct {
	Kind string `json:"kind"`

	// Device is /dev/port for devport, the tty for serial and the bus
	// number for i2cdev
	Device string `json:"device,omitempty"`

	// PCIConfig is a sysfs config file or a PCI address like 0000:00:1f.4
	PCIConfig string `json:"pci_config,omitempty"`

	// UIO is the uio device delivering the SMBus interrupt, if any
	UIO  string `json:"uio,omitempty"`
	Baud int    `json:"baud,omitempty"`
}

// Device is a slave published at start
type Device struct {
	Address    uint16            `json:"address"`
	Flags      []string          `json:"flags,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Config is the file format
type Config struct {
	Name           string   `json:"name"`
	Base           uint16   `json:"base,omitempty"`
	Features       []string `json:"features,omitempty"`
	Retries        *int     `json:"retries,omitempty"`
	TimeoutMS      int      `json:"timeout_ms,omitempty"`
	PollIntervalUS int      `json:"poll_interval_us,omitempty"`
	PollLimit      int      `json:"poll_limit,omitempty"`
	LogLevel       string   `json:"log_level,omitempty"`
	Backend        Backend  `json:"backend"`
	Devices        []Device `json:"devices,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

// Parse decodes JSON configuration and fills in defaults
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applyDefaults(&c)
	return &c, nil
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func applyDefaults(c *Config) {
	if c.Name == "" {
		c.Name = "i801"
	}
	if c.Retries == nil {
		r := smbus.DefaultRetries
		c.Retries = &r
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = int(smbus.DefaultTimeout / time.Millisecond)
	}
	if c.PollIntervalUS == 0 {
		c.PollIntervalUS = int(smbus.DefaultPollInterval / time.Microsecond)
	}
	if c.PollLimit == 0 {
		c.PollLimit = smbus.DefaultPollLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	b := &c.Backend
	if b.Kind == "" {
		b.Kind = BackendSim
	}
	switch b.Kind {
	case BackendDevPort:
		if b.Device == "" {
			b.Device = "/dev/port"
		}
		if b.PCIConfig == "" {
			b.PCIConfig = "0000:00:1f.4"
		}
	case BackendSerial:
		if b.Baud == 0 {
			b.Baud = serial.DefaultBaud
		}
	case BackendI2CDev:
		if b.Device == "" {
			b.Device = "0"
		}
	}
}

// ApplyEnv overrides settings from the process environment and from the
// given .env files. Process variables take precedence over file entries.
func (c *Config) ApplyEnv(files ...string) error {
	vars := map[string]string{}
	if len(files) > 0 {
		m, err := godotenv.Read(files...)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		vars = m
	}
	return c.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	})
}

// Override replaces the backend kind and device given on the command
// line. Switching kinds drops the settings of the previous backend.
func (c *Config) Override(kind, device string) {
	if kind != "" && kind != c.Backend.Kind {
		c.Backend = Backend{Kind: kind}
	}
	if device != "" {
		c.Backend.Device = device
	}
	applyDefaults(c)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	kind, _ := lookup(EnvBackend)
	device, _ := lookup(EnvDevice)
	c.Override(kind, device)
	if v, ok := lookup(EnvPCIConfig); ok && v != "" {
		c.Backend.PCIConfig = v
	}
	if v, ok := lookup(EnvRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRetries, err)
		}
		c.Retries = &n
	}
	if v, ok := lookup(EnvTimeoutMS); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTimeoutMS, err)
		}
		c.TimeoutMS = n
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	applyDefaults(c)
	return nil
}

// Validate reports every problem found in the configuration
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend.Kind {
	case BackendSim, BackendDevPort, BackendSerial, BackendI2CDev:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend.Kind))
	}
	if c.Backend.Kind == BackendSerial && c.Backend.Device == "" {
		errs = append(errs, errors.New("serial backend needs a device"))
	}
	if c.Backend.Kind == BackendI2CDev {
		if _, err := strconv.Atoi(c.Backend.Device); err != nil {
			errs = append(errs, fmt.Errorf("i2cdev device %q is not a bus number", c.Backend.Device))
		}
	}
	if c.Retries != nil && *c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries %d is negative", *c.Retries))
	}
	if c.TimeoutMS < 0 || c.PollIntervalUS < 0 || c.PollLimit < 0 {
		errs = append(errs, errors.New("timeouts and poll limit must not be negative"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.features(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[uint16]bool)
	for _, d := range c.Devices {
		if d.Address == 0 || d.Address > 0x7f {
			errs = append(errs, fmt.Errorf("device address 0x%02x out of range", d.Address))
		}
		if seen[d.Address] {
			errs = append(errs, fmt.Errorf("device address 0x%02x listed twice", d.Address))
		}
		seen[d.Address] = true
		if _, err := parseFlags(d.Flags); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) features() (smbus.Feature, error) {
	if len(c.Features) == 0 {
		return smbus.DefaultFeatures, nil
	}
	var f smbus.Feature
	for _, name := range c.Features {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "none" {
			continue
		}
		bit, ok := smbus.ParseFeature(name)
		if !ok {
			return 0, fmt.Errorf("unknown feature %q", name)
		}
		f |= bit
	}
	return f, nil
}

func parseFlags(names []string) (smbus.ClientFlags, error) {
	var f smbus.ClientFlags
	for _, name := range names {
		bit, ok := smbus.ParseClientFlag(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return 0, fmt.Errorf("unknown device flag %q", name)
		}
		f |= bit
	}
	return f, nil
}

// ControllerConfig validates the configuration and converts it for
// smbus.New
func (c *Config) ControllerConfig(log *logging.Logger) (smbus.Config, error) {
	if err := c.Validate(); err != nil {
		return smbus.Config{}, err
	}
	features, _ := c.features()
	retries := smbus.DefaultRetries
	if c.Retries != nil {
		retries = *c.Retries
	}
	cfg := smbus.Config{
		Name:         c.Name,
		Base:         c.Base,
		Features:     features,
		Retries:      retries,
		Timeout:      time.Duration(c.TimeoutMS) * time.Millisecond,
		PollInterval: time.Duration(c.PollIntervalUS) * time.Microsecond,
		PollLimit:    c.PollLimit,
		Logger:       log,
	}
	for _, d := range c.Devices {
		flags, _ := parseFlags(d.Flags)
		cfg.Devices = append(cfg.Devices, smbus.DeviceConfig{
			Addr:       d.Address,
			Flags:      flags,
			Properties: d.Properties,
		})
	}
	return cfg, nil
}

// Level returns the configured log level
func (c *Config) Level() logging.Level {
	lvl, _ := logging.ParseLevel(c.LogLevel)
	return lvl
}
