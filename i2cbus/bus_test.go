package i2cbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers/adxl345"

	"smbmux/sim"
	"smbmux/smbus"
)

func newBus(t *testing.T) (*Bus, *sim.Controller) {
	t.Helper()
	hw := sim.New(0xf040)
	t.Cleanup(hw.Close)
	ctrl := smbus.New(hw, hw, hw, smbus.Config{
		Features:  smbus.FeaturePEC | smbus.FeatureBlockBuffer | smbus.FeatureI2CBlockRead,
		PollLimit: 2000,
		Delay:     func(time.Duration) {},
	})
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(func() { ctrl.Stop() })
	return New(ctrl), hw
}

func TestTxShapes(t *testing.T) {
	b, hw := newBus(t)
	tgt := hw.AddTarget(0x48)

	require.NoError(t, b.Tx(0x48, nil, nil))
	assert.Equal(t, 1, tgt.Quicks())

	require.NoError(t, b.Tx(0x48, []byte{0x3c}, nil))
	assert.Equal(t, []uint8{0x3c}, tgt.Sent())

	tgt.SetReceiveByte(0x9a)
	r := make([]byte, 1)
	require.NoError(t, b.Tx(0x48, nil, r))
	assert.Equal(t, byte(0x9a), r[0])

	require.NoError(t, b.Tx(0x48, []byte{0x01, 0x7e}, nil))
	assert.Equal(t, uint8(0x7e), tgt.Reg(0x01))
	require.NoError(t, b.Tx(0x48, []byte{0x01}, r))
	assert.Equal(t, byte(0x7e), r[0])

	tgt.SetWord(0x04, 0xbeef)
	r2 := make([]byte, 2)
	require.NoError(t, b.Tx(0x48, []byte{0x04}, r2))
	assert.Equal(t, []byte{0xef, 0xbe}, r2)

	require.NoError(t, b.Tx(0x48, []byte{0x10, 1, 2, 3, 4}, nil))
	assert.Equal(t, []byte{1, 2, 3, 4}, tgt.Block(0x10))
	r4 := make([]byte, 4)
	require.NoError(t, b.Tx(0x48, []byte{0x10}, r4))
	assert.Equal(t, []byte{1, 2, 3, 4}, r4)
}

func TestTxUnsupported(t *testing.T) {
	b, hw := newBus(t)
	hw.AddTarget(0x48)
	before := hw.Attempts()

	cases := []struct {
		name string
		w, r []byte
	}{
		{"write then two bytes", []byte{1, 2}, make([]byte, 1)},
		{"read too long", []byte{1}, make([]byte, smbus.BlockMax+1)},
		{"write too long", make([]byte, smbus.BlockMax+2), nil},
		{"bare multi-byte read", nil, make([]byte, 2)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, b.Tx(0x48, tc.w, tc.r), smbus.ErrUnsupported)
		})
	}
	assert.Equal(t, before, hw.Attempts())
}

func TestRegisterHelpers(t *testing.T) {
	b, hw := newBus(t)
	tgt := hw.AddTarget(0x1d)

	require.NoError(t, b.WriteRegister(0x1d, 0x2d, []byte{0x08}))
	assert.Equal(t, uint8(0x08), tgt.Reg(0x2d))

	buf := make([]byte, 1)
	require.NoError(t, b.ReadRegister(0x1d, 0x2d, buf))
	assert.Equal(t, byte(0x08), buf[0])
}

func TestMissingDevice(t *testing.T) {
	b, _ := newBus(t)
	err := b.Tx(0x33, []byte{0x00}, make([]byte, 1))
	assert.ErrorIs(t, err, smbus.ErrNoResponse)
}

func TestDriverOverSMBus(t *testing.T) {
	b, hw := newBus(t)
	tgt := hw.AddTarget(adxl345.AddressLow)
	tgt.SetBlock(adxl345.REG_DATAX0, []byte{0x10, 0x00, 0x20, 0x00, 0x30, 0x01})

	dev := adxl345.New(b)
	x, y, z := dev.ReadRawAcceleration()
	assert.Equal(t, int16(0x10), x)
	assert.Equal(t, int16(0x20), y)
	assert.Equal(t, int16(0x130), z)
}
