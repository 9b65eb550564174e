// Package i2cbus lets TinyGo peripheral drivers talk to devices behind an
// SMBus host. Plain I2C transactions are mapped onto the SMBus protocol
// that carries the same bytes on the wire; shapes SMBus cannot express are
// rejected with smbus.ErrUnsupported.
package i2cbus

import (
	"context"
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"smbmux/smbus"
)

// DefaultTimeout bounds each Tx when the Bus has no Timeout set
const DefaultTimeout = time.Second

// Bus implements drivers.I2C over an SMBus adapter
type Bus struct {
	T       smbus.Transferer
	Timeout time.Duration
	Flags   smbus.ClientFlags
}

var _ drivers.I2C = (*Bus)(nil)

// New returns a bus using the default timeout
func New(t smbus.Transferer) *Bus {
	return &Bus{T: t, Timeout: DefaultTimeout}
}

func (b *Bus) client(addr uint16) *smbus.Client {
	return &smbus.Client{Adapter: b.T, Addr: addr, Flags: b.Flags}
}

func (b *Bus) context() (context.Context, context.CancelFunc) {
	d := b.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), d)
}

// Tx performs a write followed by a read. The supported shapes are:
//
//	w=0 r=0   quick write
//	w=0 r=1   receive byte
//	w=1 r=0   send byte
//	w=2 r=0   write byte data
//	w>2 r=0   I2C block write (first byte is the command)
//	w=1 r=1   read byte data
//	w=1 r=2   read word data
//	w=1 r>2   I2C block read
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	ctx, cancel := b.context()
	defer cancel()
	c := b.client(addr)

	switch {
	case len(w) == 0 && len(r) == 0:
		return c.Quick(ctx, smbus.Write)
	case len(w) == 0 && len(r) == 1:
		v, err := c.ReadByte(ctx)
		if err != nil {
			return err
		}
		r[0] = v
		return nil
	case len(r) == 0:
		switch len(w) {
		case 1:
			return c.WriteByte(ctx, w[0])
		case 2:
			return c.WriteByteData(ctx, w[0], w[1])
		}
		if len(w)-1 > smbus.BlockMax {
			break
		}
		return c.WriteI2CBlockData(ctx, w[0], w[1:])
	case len(w) == 1 && len(r) == 1:
		v, err := c.ReadByteData(ctx, w[0])
		if err != nil {
			return err
		}
		r[0] = v
		return nil
	case len(w) == 1 && len(r) == 2:
		v, err := c.ReadWordData(ctx, w[0])
		if err != nil {
			return err
		}
		r[0], r[1] = uint8(v), uint8(v>>8)
		return nil
	case len(w) == 1 && len(r) <= smbus.BlockMax:
		got, err := c.ReadI2CBlockData(ctx, w[0], len(r))
		if err != nil {
			return err
		}
		if len(got) != len(r) {
			return fmt.Errorf("i2cbus: short read %d of %d: %w", len(got), len(r), smbus.ErrProtocol)
		}
		copy(r, got)
		return nil
	}
	return fmt.Errorf("i2cbus: tx w=%d r=%d @0x%02x: %w", len(w), len(r), addr, smbus.ErrUnsupported)
}

// ReadRegister reads len(buf) bytes starting at register r
func (b *Bus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{r}, buf)
}

// WriteRegister writes buf starting at register r
func (b *Bus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	w := make([]byte, 1+len(buf))
	w[0] = r
	copy(w[1:], buf)
	return b.Tx(uint16(addr), w, nil)
}
