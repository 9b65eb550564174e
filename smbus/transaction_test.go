package smbus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smbmux/i801"
	"smbmux/protocol"
	"smbmux/sim"
)

func TestByteAndWordRoundTrip(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			r := newRig(t, m.features)
			tgt := r.hw.AddTarget(0x2c)
			cl := r.ctrl.Client(0x2c, 0)
			ctx := ctxT(t)

			require.NoError(t, cl.WriteByteData(ctx, 0x10, 0xab))
			assert.Equal(t, uint8(0xab), tgt.Reg(0x10))
			v, err := cl.ReadByteData(ctx, 0x10)
			require.NoError(t, err)
			assert.Equal(t, uint8(0xab), v)

			require.NoError(t, cl.WriteWordData(ctx, 0x20, 0x1234))
			assert.Equal(t, uint16(0x1234), tgt.Word(0x20))
			w, err := cl.ReadWordData(ctx, 0x20)
			require.NoError(t, err)
			assert.Equal(t, uint16(0x1234), w)

			require.NoError(t, cl.WriteByte(ctx, 0x42))
			assert.Equal(t, []uint8{0x42}, tgt.Sent())
			tgt.SetReceiveByte(0x99)
			b, err := cl.ReadByte(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint8(0x99), b)

			require.NoError(t, cl.Quick(ctx, Write))
			assert.Equal(t, 1, tgt.Quicks())
			assert.False(t, r.hw.Busy())
		})
	}
}

func TestBlockRoundTrip(t *testing.T) {
	for _, m := range modes {
		for _, buffered := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/buffer=%v", m.name, buffered), func(t *testing.T) {
				r := newRig(t, m.features)
				r.hw.SetBlockBufferSupported(buffered)
				tgt := r.hw.AddTarget(0x2c)
				cl := r.ctrl.Client(0x2c, 0)
				ctx := ctxT(t)

				for _, n := range []int{1, 2, 7, BlockMax} {
					data := seq(n, byte(n))
					require.NoError(t, cl.WriteBlockData(ctx, 0x30, data))
					assert.Equal(t, data, tgt.Block(0x30))

					got, err := cl.ReadBlockData(ctx, 0x30)
					require.NoError(t, err)
					assert.Equal(t, data, got, "length %d", n)
				}
				assert.Zero(t, r.hw.AuxCtl())
			})
		}
	}
}

func TestHelloPacketReadBack(t *testing.T) {
	r := newRig(t, irqFeatures)
	r.hw.AddTarget(0x15)
	cl := r.ctrl.Client(0x15, 0)
	ctx := ctxT(t)

	hello := []byte{0x55, 0x55, 0x55, 0x55, 0x55}
	require.NoError(t, cl.WriteBlockData(ctx, 0xa7, hello))

	var d Data
	req := &Request{Addr: 0x15, Dir: Read, Command: 0xa7, Protocol: ProtoBlockData, Data: &d}
	require.NoError(t, r.ctrl.Transfer(ctx, req))
	assert.Equal(t, uint8(5), d.Block[0])
	assert.Equal(t, hello, d.BlockBytes())
}

func TestBlockLengthValidation(t *testing.T) {
	for _, m := range modes {
		for _, buffered := range []bool{true, false} {
			for _, declared := range []int{0, BlockMax + 1} {
				name := fmt.Sprintf("%s/buffer=%v/len=%d", m.name, buffered, declared)
				t.Run(name, func(t *testing.T) {
					r := newRig(t, m.features)
					r.hw.SetBlockBufferSupported(buffered)
					tgt := r.hw.AddTarget(0x2c)
					tgt.SetBlock(0x40, seq(BlockMax+1, 0))
					tgt.SetDeclaredLength(0x40, declared)
					tgt.SetReg(0x01, 0x5a)
					cl := r.ctrl.Client(0x2c, 0)
					ctx := ctxT(t)

					_, err := cl.ReadBlockData(ctx, 0x40)
					require.ErrorIs(t, err, ErrProtocol)
					assert.False(t, r.hw.Busy())
					assert.Zero(t, r.hw.AuxCtl())

					// the host is usable again
					v, err := cl.ReadByteData(ctx, 0x01)
					require.NoError(t, err)
					assert.Equal(t, uint8(0x5a), v)
				})
			}
		}
	}
}

func TestI2CBlock(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			r := newRig(t, m.features)
			tgt := r.hw.AddTarget(0x50)
			cl := r.ctrl.Client(0x50, 0)
			ctx := ctxT(t)

			data := seq(6, 0xa0)
			require.NoError(t, cl.WriteI2CBlockData(ctx, 0x08, data))
			assert.Equal(t, data, tgt.Block(0x08))
			assert.Zero(t, r.hw.HostConfig()&i801.HstcfgI2CEn, "I2C_EN restored")

			for _, n := range []int{1, 4} {
				got, err := cl.ReadI2CBlockData(ctx, 0x08, n)
				require.NoError(t, err)
				assert.Equal(t, data[:n], got)
			}
		})
	}
}

func TestI2CBlockReadUnsupported(t *testing.T) {
	r := newRig(t, FeatureBlockBuffer)
	r.hw.AddTarget(0x50)
	before := r.hw.Attempts()

	_, err := r.ctrl.Client(0x50, 0).ReadI2CBlockData(ctxT(t), 0x00, 4)
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, before, r.hw.Attempts())
}

func TestUnsupportedRequests(t *testing.T) {
	r := newRig(t, pollFeatures)
	ctx := ctxT(t)

	err := r.ctrl.Transfer(ctx, &Request{Addr: 0x2c, Protocol: ProtoProcCall})
	assert.ErrorIs(t, err, ErrUnsupported)
	err = r.ctrl.Transfer(ctx, &Request{Addr: 0x2c, Flags: FlagTenBit, Protocol: ProtoQuick})
	assert.ErrorIs(t, err, ErrUnsupported)
	err = r.ctrl.Transfer(ctx, &Request{Addr: 0x80, Protocol: ProtoQuick})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, r.hw.Attempts())
}

func TestPECDisabledAfterTransfers(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			r := newRig(t, m.features)
			r.hw.AddTarget(0x2c)
			cl := r.ctrl.Client(0x2c, FlagPEC)
			ctx := ctxT(t)

			require.NoError(t, cl.WriteByteData(ctx, 0x05, 0x77))
			assert.Equal(t, protocol.CRC8(0, []byte{0x2c << 1, 0x05, 0x77}), r.hw.PEC())
			assert.Zero(t, r.hw.AuxCtl())

			require.NoError(t, cl.WriteBlockData(ctx, 0x06, []byte{1, 2, 3}))
			assert.Zero(t, r.hw.AuxCtl())

			r.hw.InjectFault(sim.FaultNoAck)
			_, err := cl.ReadBlockData(ctx, 0x06)
			require.ErrorIs(t, err, ErrNoResponse)
			assert.Zero(t, r.hw.AuxCtl())

			r.hw.InjectFault(sim.FaultPEC)
			_, err = cl.ReadWordData(ctx, 0x06)
			require.ErrorIs(t, err, ErrBadMessage)
			assert.Zero(t, r.hw.AuxCtl())
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		fault sim.Fault
		want  error
	}{
		{sim.FaultFailed, ErrFailed},
		{sim.FaultNoAck, ErrNoResponse},
		{sim.FaultPEC, ErrBadMessage},
		{sim.FaultArbitration, ErrArbitrationLost},
	}
	for _, m := range modes {
		for _, tc := range cases {
			t.Run(m.name+"/"+tc.fault.String(), func(t *testing.T) {
				r := newRig(t, m.features, func(c *Config) { c.Retries = 0 })
				r.hw.AddTarget(0x2c)
				r.hw.InjectFault(tc.fault)

				_, err := r.ctrl.Client(0x2c, FlagPEC).ReadByteData(ctxT(t), 0x00)
				require.ErrorIs(t, err, tc.want)
				var op *OpError
				require.ErrorAs(t, err, &op)
				assert.Equal(t, uint16(0x2c), op.Addr)
				assert.Equal(t, 1, r.hw.Attempts())
			})
		}
	}
}

func TestMissingDeviceIsNoResponse(t *testing.T) {
	r := newRig(t, irqFeatures)
	err := r.ctrl.Client(0x3e, 0).Quick(ctxT(t), Write)
	require.ErrorIs(t, err, ErrNoResponse)
}

func TestArbitrationRetry(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			r := newRig(t, m.features, func(c *Config) { c.Retries = 3 })
			tgt := r.hw.AddTarget(0x2c)
			tgt.SetReg(0x00, 0x11)
			r.hw.InjectFault(sim.FaultArbitration, sim.FaultArbitration)

			v, err := r.ctrl.Client(0x2c, 0).ReadByteData(ctxT(t), 0x00)
			require.NoError(t, err)
			assert.Equal(t, uint8(0x11), v)
			assert.Equal(t, 3, r.hw.Attempts())

			tr := r.ctrl.Trace()
			require.Len(t, tr, 1)
			assert.Equal(t, 3, tr[0].Attempts)
			assert.NoError(t, tr[0].Err)
		})
	}
}

func TestArbitrationRetriesExhausted(t *testing.T) {
	r := newRig(t, pollFeatures, func(c *Config) { c.Retries = 3 })
	r.hw.AddTarget(0x2c)
	r.hw.InjectFault(sim.FaultArbitration, sim.FaultArbitration, sim.FaultArbitration, sim.FaultArbitration)

	_, err := r.ctrl.Client(0x2c, 0).ReadByteData(ctxT(t), 0x00)
	require.ErrorIs(t, err, ErrArbitrationLost)
	assert.Equal(t, 4, r.hw.Attempts())
}

func TestFailedIsNotRetried(t *testing.T) {
	r := newRig(t, pollFeatures, func(c *Config) { c.Retries = 3 })
	r.hw.AddTarget(0x2c)
	r.hw.InjectFault(sim.FaultFailed)

	_, err := r.ctrl.Client(0x2c, 0).ReadByteData(ctxT(t), 0x00)
	require.ErrorIs(t, err, ErrFailed)
	assert.Equal(t, 1, r.hw.Attempts())
}

func TestPollTimeoutKills(t *testing.T) {
	for _, bytewise := range []bool{false, true} {
		t.Run(fmt.Sprintf("bytewise=%v", bytewise), func(t *testing.T) {
			r := newRig(t, pollFeatures, func(c *Config) { c.PollLimit = 50 })
			r.hw.SetBlockBufferSupported(!bytewise)
			tgt := r.hw.AddTarget(0x2c)
			tgt.SetBlock(0x01, []byte{1, 2})
			r.hw.InjectFault(sim.FaultHang)

			_, err := r.ctrl.Client(0x2c, 0).ReadBlockData(ctxT(t), 0x01)
			require.ErrorIs(t, err, ErrTimeout)
			assert.Equal(t, 1, r.hw.Kills())
			assert.False(t, r.hw.Busy())
			assert.Zero(t, r.hw.Status()&i801.StsFlags)

			got, err := r.ctrl.Client(0x2c, 0).ReadBlockData(ctxT(t), 0x01)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2}, got)
		})
	}
}

func TestIRQTimeoutDoesNotKill(t *testing.T) {
	r := newRig(t, irqFeatures, func(c *Config) { c.Timeout = 20 * time.Millisecond })
	r.hw.AddTarget(0x2c)
	r.hw.InjectFault(sim.FaultHang)
	cl := r.ctrl.Client(0x2c, 0)

	_, err := cl.ReadByteData(ctxT(t), 0x00)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, r.hw.Kills())
	assert.True(t, r.hw.Busy())

	// the stuck host is reported, not overwritten
	_, err = cl.ReadByteData(ctxT(t), 0x00)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, r.hw.Attempts())
}

func TestIRQLostInterruptTimesOut(t *testing.T) {
	r := newRig(t, irqFeatures, func(c *Config) { c.Timeout = 20 * time.Millisecond })
	r.hw.AddTarget(0x2c)
	r.hw.InjectFault(sim.FaultLostInterrupt)
	cl := r.ctrl.Client(0x2c, 0)

	_, err := cl.ReadByteData(ctxT(t), 0x00)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, r.hw.Kills())

	// the completed status is stale and gets cleared by the next attempt
	_, err = cl.ReadByteData(ctxT(t), 0x00)
	require.NoError(t, err)
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			r := newRig(t, m.features)
			r.hw.AddTarget(0x2c)
			ctx := ctxT(t)

			var wg sync.WaitGroup
			errs := make(chan error, 16)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					cl := r.ctrl.Client(0x2c, 0)
					cmd := uint8(i * 4)
					v := uint16(0x1000 + i)
					if err := cl.WriteWordData(ctx, cmd, v); err != nil {
						errs <- err
						return
					}
					got, err := cl.ReadWordData(ctx, cmd)
					if err != nil {
						errs <- err
						return
					}
					if got != v {
						errs <- fmt.Errorf("cmd 0x%02x: got 0x%04x want 0x%04x", cmd, got, v)
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}
			assert.Equal(t, 16, r.hw.Attempts())
		})
	}
}

func TestTransferAfterStop(t *testing.T) {
	r := newRig(t, pollFeatures)
	require.NoError(t, r.ctrl.Stop())

	err := r.ctrl.Client(0x2c, 0).Quick(context.Background(), Write)
	require.ErrorIs(t, err, ErrClosed)
}

func TestTransferHonoursContext(t *testing.T) {
	r := newRig(t, pollFeatures)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.ctrl.Client(0x2c, 0).Quick(ctx, Write)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.hw.Attempts())
}
