package regio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smbmux/i801"
	"smbmux/sim"
)

const linkBase = 0x0400

// newLink serves a simulated controller through a bridge and returns the
// remote end
func newLink(t *testing.T) (*sim.Controller, *Remote) {
	t.Helper()
	hw := sim.New(linkBase)
	host, dev := net.Pipe()

	br := NewBridge(dev, hw, hw, hw, nil)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- br.Serve(ctx) }()

	rem := NewRemote(host, nil)
	t.Cleanup(func() {
		rem.Close()
		cancel()
		<-served
		hw.Close()
	})
	return hw, rem
}

func TestRemoteRegisters(t *testing.T) {
	hw, rem := newLink(t)

	rem.Out8(linkBase+i801.HSTDAT0, 0x5a)
	assert.Equal(t, uint8(0x5a), rem.In8(linkBase+i801.HSTDAT0))
	assert.Equal(t, uint8(0xff), rem.In8(0x10), "outside the window")

	assert.Equal(t, uint8(i801.HstcfgHSTEn), rem.ReadConfig8(i801.CfgHSTCFG))
	assert.Equal(t, uint16(linkBase), ReadConfig16(rem, i801.CfgSMBBA)&0xfffe)
	rem.WriteConfig8(i801.CfgHSTCFG, i801.HstcfgHSTEn|i801.HstcfgSPDWD)
	assert.Equal(t, uint8(i801.HstcfgHSTEn|i801.HstcfgSPDWD), hw.HostConfig())
}

func TestRemoteTransaction(t *testing.T) {
	hw, rem := newLink(t)
	hw.AddTarget(0x2c).SetReg(0x03, 0x77)
	regs := Regs{Bus: rem, Base: linkBase}

	regs.Write(i801.HSTADD, 0x2c<<1|1)
	regs.Write(i801.HSTCMD, 0x03)
	regs.Write(i801.HSTCNT, i801.XactByteData|i801.CntStart)
	assert.Equal(t, uint8(i801.StsIntr), regs.Read(i801.HSTSTS))
	assert.Equal(t, uint8(0x77), regs.Read(i801.HSTDAT0))
}

func TestRemoteInterrupt(t *testing.T) {
	hw, rem := newLink(t)
	hw.AddTarget(0x2c)
	regs := Regs{Bus: rem, Base: linkBase}

	fired := make(chan uint8, 4)
	require.NoError(t, rem.Enable(func() {
		st := regs.Read(i801.HSTSTS)
		regs.Write(i801.HSTSTS, st)
		fired <- st
	}))

	regs.Write(i801.HSTADD, 0x2c<<1)
	regs.Write(i801.HSTCNT, i801.XactQuick|i801.CntIntrEn|i801.CntStart)

	select {
	case st := <-fired:
		assert.Equal(t, uint8(i801.StsIntr), st)
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt not forwarded")
	}
	rem.Disable()
}

func TestRemoteTimeout(t *testing.T) {
	host, dev := net.Pipe()
	defer dev.Close()
	// nothing answers on dev, drain it so writes complete
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := dev.Read(buf); err != nil {
				return
			}
		}
	}()

	rem := NewRemote(host, nil)
	defer rem.Close()
	rem.SetTimeout(20 * time.Millisecond)
	assert.Equal(t, uint8(0xff), rem.In8(linkBase))
	assert.Error(t, rem.Enable(func() {}))
}
