// Package serial opens the serial links used to reach a remote register
// window.
package serial

import (
	"io"
)

// Port is a byte stream to the remote end. The native implementation uses
// github.com/tarm/serial; tests substitute net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud matches the bridge's default; CDC-ACM devices ignore it
const DefaultBaud = 250000

// DefaultConfig returns the configuration used when only a device is given
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
