//go:build linux

package regio

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"smbmux/logging"
)

// DefaultPortDevice is the kernel's byte-addressed view of I/O port space
const DefaultPortDevice = "/dev/port"

// offsetFile accesses a device file one byte at a time at fixed offsets
type offsetFile struct {
	path string
	fd   int
	mu   sync.Mutex
	log  *logging.Logger
}

func openOffsetFile(path string, log *logging.Logger) (*offsetFile, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &offsetFile{path: path, fd: fd, log: log}, nil
}

func (f *offsetFile) read8(off int64) uint8 {
	var b [1]byte
	f.mu.Lock()
	n, err := unix.Pread(f.fd, b[:], off)
	f.mu.Unlock()
	if err != nil || n != 1 {
		f.log.Errorf("%s: read at 0x%x failed: %v", f.path, off, err)
		return 0xFF
	}
	return b[0]
}

func (f *offsetFile) write8(off int64, v uint8) {
	f.mu.Lock()
	n, err := unix.Pwrite(f.fd, []byte{v}, off)
	f.mu.Unlock()
	if err != nil || n != 1 {
		f.log.Errorf("%s: write at 0x%x failed: %v", f.path, off, err)
	}
}

func (f *offsetFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	return err
}

// PortFile is a Bus over /dev/port. It needs CAP_SYS_RAWIO.
type PortFile struct {
	*offsetFile
}

// OpenPortFile opens path (usually DefaultPortDevice) for port I/O
func OpenPortFile(path string, log *logging.Logger) (*PortFile, error) {
	if path == "" {
		path = DefaultPortDevice
	}
	f, err := openOffsetFile(path, log)
	if err != nil {
		return nil, err
	}
	return &PortFile{f}, nil
}

func (p *PortFile) In8(port uint16) uint8     { return p.read8(int64(port)) }
func (p *PortFile) Out8(port uint16, v uint8) { p.write8(int64(port), v) }

// PCIConfigFile is a ConfigSpace over a sysfs config file such as
// /sys/bus/pci/devices/0000:00:1f.4/config
type PCIConfigFile struct {
	*offsetFile
}

// SysfsConfigPath returns the sysfs config path for a PCI address
func SysfsConfigPath(addr string) string {
	return "/sys/bus/pci/devices/" + addr + "/config"
}

// OpenPCIConfig opens a sysfs PCI config file
func OpenPCIConfig(path string, log *logging.Logger) (*PCIConfigFile, error) {
	f, err := openOffsetFile(path, log)
	if err != nil {
		return nil, err
	}
	return &PCIConfigFile{f}, nil
}

func (c *PCIConfigFile) ReadConfig8(offset uint8) uint8     { return c.read8(int64(offset)) }
func (c *PCIConfigFile) WriteConfig8(offset uint8, v uint8) { c.write8(int64(offset), v) }
