package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smbmux/logging"
	"smbmux/smbus"
)

const sample = `{
	"name": "pch",
	"features": ["pec", "block-buffer", "irq", "host-notify"],
	"retries": 0,
	"timeout_ms": 50,
	"backend": {"kind": "devport", "uio": "/dev/uio0"},
	"devices": [
		{"address": 21, "flags": ["host-notify"], "properties": {"driver": "elan"}},
		{"address": 80}
	]
}`

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "i801", c.Name)
	require.NotNil(t, c.Retries)
	assert.Equal(t, smbus.DefaultRetries, *c.Retries)
	assert.Equal(t, 200, c.TimeoutMS)
	assert.Equal(t, 250, c.PollIntervalUS)
	assert.Equal(t, smbus.DefaultPollLimit, c.PollLimit)
	assert.Equal(t, BackendSim, c.Backend.Kind)
	assert.Equal(t, logging.LevelInfo, c.Level())
	assert.NoError(t, c.Validate())
}

func TestParseSample(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "/dev/port", c.Backend.Device)
	assert.Equal(t, "0000:00:1f.4", c.Backend.PCIConfig)
	assert.Equal(t, "/dev/uio0", c.Backend.UIO)

	cfg, err := c.ControllerConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "pch", cfg.Name)
	assert.Zero(t, cfg.Retries, "explicit zero retries kept")
	assert.Equal(t, 50*time.Millisecond, cfg.Timeout)
	assert.Equal(t, smbus.FeaturePEC|smbus.FeatureBlockBuffer|smbus.FeatureIRQ|smbus.FeatureHostNotify, cfg.Features)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, uint16(0x15), cfg.Devices[0].Addr)
	assert.Equal(t, smbus.FlagHostNotify, cfg.Devices[0].Flags)
	assert.Equal(t, "elan", cfg.Devices[0].Properties["driver"])
}

func TestParseRejectsBadJSON(t *testing.T) {
	_, err := Parse([]byte(`{"devices": 3}`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smbus.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pch", c.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		json string
		msg  string
	}{
		{"duplicate address", `{"devices": [{"address": 21}, {"address": 21}]}`, "listed twice"},
		{"address too large", `{"devices": [{"address": 128}]}`, "out of range"},
		{"zero address", `{"devices": [{"address": 0}]}`, "out of range"},
		{"unknown flag", `{"devices": [{"address": 21, "flags": ["fast"]}]}`, "unknown device flag"},
		{"unknown feature", `{"features": ["dma"]}`, "unknown feature"},
		{"unknown backend", `{"backend": {"kind": "usb"}}`, "unknown backend"},
		{"serial without device", `{"backend": {"kind": "serial"}}`, "needs a device"},
		{"i2cdev bus name", `{"backend": {"kind": "i2cdev", "device": "i2c-3"}}`, "not a bus number"},
		{"negative retries", `{"retries": -1}`, "negative"},
		{"bad level", `{"log_level": "loud"}`, "unknown log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse([]byte(tc.json))
			require.NoError(t, err)
			err = c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)

			_, err = c.ControllerConfig(nil)
			assert.Error(t, err)
		})
	}
}

func TestFeaturesNone(t *testing.T) {
	c, err := Parse([]byte(`{"features": ["none"]}`))
	require.NoError(t, err)
	cfg, err := c.ControllerConfig(nil)
	require.NoError(t, err)
	assert.Zero(t, cfg.Features)
}

func TestEnvOverrides(t *testing.T) {
	c := Default()
	env := map[string]string{
		EnvBackend:   "serial",
		EnvDevice:    "/dev/ttyACM0",
		EnvRetries:   "7",
		EnvTimeoutMS: "20",
		EnvLogLevel:  "debug",
	}
	require.NoError(t, c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, BackendSerial, c.Backend.Kind)
	assert.Equal(t, "/dev/ttyACM0", c.Backend.Device)
	assert.Equal(t, 250000, c.Backend.Baud)
	assert.Equal(t, 7, *c.Retries)
	assert.Equal(t, 20, c.TimeoutMS)
	assert.Equal(t, logging.LevelDebug, c.Level())

	env = map[string]string{EnvRetries: "many"}
	assert.Error(t, c.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "SMBUS_BACKEND=i2cdev\nSMBUS_DEVICE=5\nSMBUS_TIMEOUT_MS=75\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv(EnvTimeoutMS, "90")

	c := Default()
	require.NoError(t, c.ApplyEnv(path))
	assert.Equal(t, BackendI2CDev, c.Backend.Kind)
	assert.Equal(t, "5", c.Backend.Device)
	assert.Equal(t, 90, c.TimeoutMS, "process environment wins over the file")
	assert.NoError(t, c.Validate())

	assert.Error(t, Default().ApplyEnv(filepath.Join(t.TempDir(), "none.env")))
}

func TestOverride(t *testing.T) {
	c, err := Parse([]byte(`{"backend": {"kind": "serial", "device": "/dev/ttyUSB0", "baud": 9600}}`))
	require.NoError(t, err)

	c.Override("", "/dev/ttyUSB1")
	assert.Equal(t, 9600, c.Backend.Baud)
	assert.Equal(t, "/dev/ttyUSB1", c.Backend.Device)

	c.Override(BackendDevPort, "")
	assert.Equal(t, Backend{Kind: BackendDevPort, Device: "/dev/port", PCIConfig: "0000:00:1f.4"}, c.Backend)
}
