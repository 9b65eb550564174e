//go:build linux

// Package i2cdev runs SMBus requests through the kernel's i2c-dev driver
// (/dev/i2c-N) instead of driving the i801 registers directly. It is the
// backend to use when the kernel already owns the controller.
package i2cdev

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/platinasystems/i2c"
	"golang.org/x/sys/unix"

	"smbmux/logging"
	"smbmux/smbus"
)

// Adapter implements smbus.Transferer for one /dev/i2c-N bus. Transfers
// through one Adapter are serialized.
type Adapter struct {
	Index int
	Log   *logging.Logger

	mu sync.Mutex
}

// blockUnion mirrors the kernel's union i2c_smbus_data: a count byte, up
// to 32 data bytes and one more for PEC. i2c.SMBusData is only 32 bytes,
// so block transfers do not go through it.
type blockUnion [smbus.BlockMax + 2]byte

// smbusIoctl mirrors struct i2c_smbus_ioctl_data
type smbusIoctl struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *blockUnion
}

var _ smbus.Transferer = (*Adapter)(nil)

// New returns an adapter for /dev/i2c-index
func New(index int, log *logging.Logger) *Adapter {
	return &Adapter{Index: index, Log: log}
}

func (a *Adapter) Transfer(ctx context.Context, req *smbus.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.Flags&smbus.FlagTenBit != 0 || req.Addr > 0x7f {
		return &smbus.OpError{Op: "i2cdev", Addr: req.Addr, Err: smbus.ErrUnsupported}
	}
	size, err := smbusSize(req.Protocol)
	if err != nil {
		return &smbus.OpError{Op: "i2cdev", Addr: req.Addr, Err: err}
	}
	if req.Data == nil {
		req.Data = new(smbus.Data)
	}

	var rw i2c.RW = i2c.Write
	if req.Dir == smbus.Read {
		rw = i2c.Read
	}

	a.mu.Lock()
	if isBlock(req.Protocol) {
		var u blockUnion
		encode(req, u[:])
		err = a.doBlock(req.Addr, rw, req.Command, size, &u)
		if err == nil && req.Dir == smbus.Read {
			decode(req, u[:])
		}
	} else {
		var sd i2c.SMBusData
		encode(req, sd[:])
		err = i2c.Do(a.Index, int(req.Addr), func(bus *i2c.Bus) error {
			// ReadWrite keeps the errno that Bus.Do flattens into text
			return bus.ReadWrite(rw, req.Command, size, &sd)
		})
		if err == nil && req.Dir == smbus.Read {
			decode(req, sd[:])
		}
	}
	a.mu.Unlock()
	if err != nil {
		a.Log.Debugf("i2c-%d @0x%02x %s %s: %v", a.Index, req.Addr, req.Dir, req.Protocol, err)
		return &smbus.OpError{Op: req.Dir.String() + " " + req.Protocol.String(), Addr: req.Addr, Err: mapError(err)}
	}
	return nil
}

func isBlock(p smbus.Protocol) bool {
	return p == smbus.ProtoBlockData || p == smbus.ProtoI2CBlockData
}

// doBlock issues I2C_SMBUS directly with a full-size data union
func (a *Adapter) doBlock(addr uint16, rw i2c.RW, cmd uint8, size i2c.SMBusSize, u *blockUnion) error {
	path := fmt.Sprintf("/dev/i2c-%d", a.Index)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetInt(fd, uint(i2c.I2C_SLAVE_FORCE), int(addr)); err != nil {
		return fmt.Errorf("set slave address: %w", err)
	}
	arg := smbusIoctl{command: cmd, size: uint32(size), data: u}
	if rw == i2c.Read {
		arg.readWrite = 1
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(i2c.I2C_SMBUS), uintptr(unsafe.Pointer(&arg)))
	runtime.KeepAlive(u)
	if errno != 0 {
		return errno
	}
	return nil
}

// smbusSize converts a protocol to the i2c-dev transaction size. Both use
// the kernel numbering, so only the supported set is checked.
func smbusSize(p smbus.Protocol) (i2c.SMBusSize, error) {
	switch p {
	case smbus.ProtoQuick, smbus.ProtoByte, smbus.ProtoByteData,
		smbus.ProtoWordData, smbus.ProtoBlockData, smbus.ProtoI2CBlockData:
		return i2c.SMBusSize(p), nil
	}
	return 0, fmt.Errorf("i2cdev: %s: %w", p, smbus.ErrUnsupported)
}

// encode copies the request payload into a kernel data buffer. Block
// payloads are cut to what buf can carry after its count byte.
func encode(req *smbus.Request, buf []byte) {
	d := req.Data
	switch req.Protocol {
	case smbus.ProtoByteData:
		buf[0] = d.Byte
	case smbus.ProtoWordData:
		buf[0], buf[1] = uint8(d.Word), uint8(d.Word>>8)
	case smbus.ProtoBlockData, smbus.ProtoI2CBlockData:
		// reads only use the length, which selects the I2C block size
		n := min(int(d.Block[0]), smbus.BlockMax, len(buf)-1)
		buf[0] = uint8(n)
		copy(buf[1:], d.Block[1:1+n])
	}
}

// decode copies a read result back into the request
func decode(req *smbus.Request, buf []byte) {
	d := req.Data
	switch req.Protocol {
	case smbus.ProtoByte, smbus.ProtoByteData:
		d.Byte = buf[0]
	case smbus.ProtoWordData:
		d.Word = uint16(buf[0]) | uint16(buf[1])<<8
	case smbus.ProtoBlockData, smbus.ProtoI2CBlockData:
		n := min(int(buf[0]), smbus.BlockMax, len(buf)-1)
		d.Block[0] = uint8(n)
		copy(d.Block[1:], buf[1:1+n])
	}
}

func mapError(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return fmt.Errorf("%w: %v", smbus.FromErrno(errno), err)
	}
	return err
}
