// Package sim models an ICH/PCH SMBus host controller closely enough to
// drive the engine through every protocol path: block buffer and
// byte-by-byte transfers, interrupts and polling, host notify, kill, and
// injected bus faults.
//
// A Controller implements regio.Bus, regio.ConfigSpace and
// regio.Interrupt. Interrupts are level triggered and delivered from a
// single worker goroutine; in polling mode an in-flight step completes on
// the next read of HSTSTS.
package sim

import (
	"sync"
	"time"

	"smbmux/i801"
	"smbmux/protocol"
)

// Fault is an injected failure consumed by the next started transaction
type Fault int

const (
	FaultNone          Fault = iota
	FaultArbitration         // BUS_ERR
	FaultFailed              // FAILED
	FaultNoAck               // DEV_ERR
	FaultPEC                 // DEV_ERR with AUXSTS.CRCE
	FaultHang                // stays busy until KILL
	FaultLostInterrupt       // completes without raising the line
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultArbitration:
		return "arbitration"
	case FaultFailed:
		return "failed"
	case FaultNoAck:
		return "no-ack"
	case FaultPEC:
		return "pec"
	case FaultHang:
		return "hang"
	case FaultLostInterrupt:
		return "lost-interrupt"
	}
	return "unknown"
}

// byteLimit caps a byte-by-byte read that never sees LAST_BYTE
const byteLimit = i801.BlockMax + 1

// maxRefire bounds handler invocations per wakeup of the worker
const maxRefire = 256

// xfer is the transaction in flight
type xfer struct {
	xact  uint8
	irq   bool
	read  bool
	addr  uint8
	cmd   uint8
	fault Fault

	byteMode bool
	inflight bool
	final    bool
	data     []byte // read: bytes the target returns
	idx      int
	out      []byte // write: bytes received so far
	pending  uint8  // write: byte latched for the next step
	wlen     int
	count    int // SMBus block read: length announced by the target
}

// Controller is the simulated host controller
type Controller struct {
	mu   sync.Mutex
	base uint16

	hststs, hstcnt, hstcmd, hstadd uint8
	dat0, dat1, blkdat             uint8
	pec, auxsts, auxctl            uint8
	slvsts, slvcmd                 uint8
	ntfdadd                        uint8
	ntfddat                        [2]uint8

	blk    [i801.BlockMax]byte
	blkIdx int

	cfg [256]byte

	targets     map[uint8]*Target
	faults      []Fault
	active      *xfer
	suppressIRQ bool
	delay       time.Duration
	noE32B      bool

	attempts int
	kills    int

	handler func()
	kick    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a controller decoding I/O ports base..base+31, with the
// host enabled in HSTCFG and base published in the SMBBA register
func New(base uint16) *Controller {
	s := &Controller{
		base:    base,
		targets: make(map[uint8]*Target),
		kick:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.cfg[i801.CfgHSTCFG] = i801.HstcfgHSTEn
	s.cfg[i801.CfgSMBBA] = uint8(base) | 1
	s.cfg[i801.CfgSMBBA+1] = uint8(base >> 8)
	go s.worker()
	return s
}

// Close stops the interrupt worker
func (s *Controller) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
	})
}

// Base returns the decoded I/O base
func (s *Controller) Base() uint16 { return s.base }

// AddTarget attaches a new slave at addr and returns it
func (s *Controller) AddTarget(addr uint8) *Target {
	t := NewTarget()
	s.mu.Lock()
	s.targets[addr] = t
	s.mu.Unlock()
	return t
}

// RemoveTarget detaches the slave at addr
func (s *Controller) RemoveTarget(addr uint8) {
	s.mu.Lock()
	delete(s.targets, addr)
	s.mu.Unlock()
}

// InjectFault queues faults for the next transactions, one per START
func (s *Controller) InjectFault(faults ...Fault) {
	s.mu.Lock()
	s.faults = append(s.faults, faults...)
	s.mu.Unlock()
}

// SetCompletionDelay delays interrupt-driven completions by d
func (s *Controller) SetCompletionDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// SetBlockBufferSupported controls whether AUXCTL.E32B can be set, as on
// controllers older than ICH4
func (s *Controller) SetBlockBufferSupported(ok bool) {
	s.mu.Lock()
	s.noE32B = !ok
	if s.noE32B {
		s.auxctl &^= i801.AuxCtlE32B
	}
	s.mu.Unlock()
}

// Notify latches a host notify from addr carrying data
func (s *Controller) Notify(addr uint8, data uint16) {
	s.mu.Lock()
	s.ntfdadd = addr << 1
	s.ntfddat = [2]uint8{uint8(data), uint8(data >> 8)}
	s.slvsts |= i801.SlvStsHostNotify
	s.mu.Unlock()
	s.poke()
}

// Attempts returns the number of transactions started
func (s *Controller) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Kills returns the number of KILL requests seen
func (s *Controller) Kills() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kills
}

// Busy reports HSTSTS.HOST_BUSY
func (s *Controller) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hststs&i801.StsHostBusy != 0
}

// Status returns HSTSTS without side effects
func (s *Controller) Status() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hststs
}

func (s *Controller) AuxCtl() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auxctl
}

func (s *Controller) SlaveCommand() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slvcmd
}

// HostConfig returns the HSTCFG byte
func (s *Controller) HostConfig() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg[i801.CfgHSTCFG]
}

// PEC returns the packet error code of the last PEC-enabled transfer
func (s *Controller) PEC() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pec
}

func (s *Controller) ReadConfig8(offset uint8) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg[offset]
}

func (s *Controller) WriteConfig8(offset uint8, v uint8) {
	s.mu.Lock()
	s.cfg[offset] = v
	s.mu.Unlock()
}

// Enable installs the interrupt handler
func (s *Controller) Enable(handler func()) error {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
	s.poke()
	return nil
}

// Disable removes the handler. It does not wait for a running one.
func (s *Controller) Disable() {
	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
}

func (s *Controller) poke() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Controller) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.kick:
		}

		s.mu.Lock()
		d := s.delay
		s.mu.Unlock()
		if d > 0 {
			select {
			case <-time.After(d):
			case <-s.quit:
				return
			}
		}

		for i := 0; i < maxRefire; i++ {
			s.mu.Lock()
			if s.active != nil && s.active.irq {
				s.advanceLocked()
			}
			pending := s.irqPendingLocked()
			h := s.handler
			s.mu.Unlock()
			if !pending || h == nil {
				break
			}
			h()
		}
	}
}

func (s *Controller) irqPendingLocked() bool {
	host := !s.suppressIRQ && s.hstcnt&i801.CntIntrEn != 0 &&
		s.hststs&(i801.StsByteDone|i801.StsIntr|i801.StsErrorFlags) != 0
	notify := s.slvcmd&i801.SlvCmdHostNotifyIntEn != 0 &&
		s.slvsts&i801.SlvStsHostNotify != 0
	return host || notify
}

func (s *Controller) bufferMode() bool {
	return s.auxctl&i801.AuxCtlE32B != 0
}

func (s *Controller) In8(port uint16) uint8 {
	if port < s.base || port >= s.base+i801.RegionSize {
		return 0xFF
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch port - s.base {
	case i801.HSTSTS:
		if s.active != nil && !s.active.irq {
			s.advanceLocked()
		}
		return s.hststs
	case i801.HSTCNT:
		s.blkIdx = 0
		return s.hstcnt
	case i801.HSTCMD:
		return s.hstcmd
	case i801.HSTADD:
		return s.hstadd
	case i801.HSTDAT0:
		return s.dat0
	case i801.HSTDAT1:
		return s.dat1
	case i801.BLKDAT:
		if !s.bufferMode() {
			return s.blkdat
		}
		if s.blkIdx >= len(s.blk) {
			return 0xFF
		}
		v := s.blk[s.blkIdx]
		s.blkIdx++
		return v
	case i801.PEC:
		return s.pec
	case i801.AUXSTS:
		return s.auxsts
	case i801.AUXCTL:
		return s.auxctl
	case i801.SLVSTS:
		return s.slvsts
	case i801.SLVCMD:
		return s.slvcmd
	case i801.NTFDADD:
		return s.ntfdadd
	case i801.NTFDDAT:
		return s.ntfddat[0]
	case i801.NTFDDAT + 1:
		return s.ntfddat[1]
	}
	return 0
}

func (s *Controller) Out8(port uint16, v uint8) {
	if port < s.base || port >= s.base+i801.RegionSize {
		return
	}
	s.mu.Lock()
	kick := false
	switch port - s.base {
	case i801.HSTSTS:
		clearing := s.hststs & v & (i801.StsFlags | i801.StsSMBAlert | i801.StsInUse)
		s.hststs &^= clearing
		if clearing&i801.StsByteDone != 0 {
			kick = s.byteDoneClearedLocked()
		}
	case i801.HSTCNT:
		switch {
		case v&i801.CntKill != 0:
			s.killLocked()
			s.hstcnt = v
		case v&i801.CntStart != 0 && s.active == nil && s.hstcnt&i801.CntKill == 0:
			s.hstcnt = v &^ i801.CntStart
			kick = s.startLocked()
		default:
			s.hstcnt = v &^ i801.CntStart
		}
	case i801.HSTCMD:
		s.hstcmd = v
	case i801.HSTADD:
		s.hstadd = v
	case i801.HSTDAT0:
		s.dat0 = v
	case i801.HSTDAT1:
		s.dat1 = v
	case i801.BLKDAT:
		if !s.bufferMode() {
			s.blkdat = v
		} else if s.blkIdx < len(s.blk) {
			s.blk[s.blkIdx] = v
			s.blkIdx++
		}
	case i801.AUXSTS:
		s.auxsts &^= v
	case i801.AUXCTL:
		s.auxctl = v & (i801.AuxCtlCRC | i801.AuxCtlE32B)
		if s.noE32B {
			s.auxctl &^= i801.AuxCtlE32B
		}
	case i801.SLVSTS:
		s.slvsts &^= v
	case i801.SLVCMD:
		s.slvcmd = v
		kick = s.irqPendingLocked()
	}
	s.mu.Unlock()
	if kick {
		s.poke()
	}
}

func (s *Controller) killLocked() {
	s.kills++
	s.active = nil
	s.hststs = s.hststs&^i801.StsHostBusy | i801.StsFailed
}

// startLocked begins a transaction and reports whether the worker must run
func (s *Controller) startLocked() bool {
	s.attempts++
	s.suppressIRQ = false
	s.hststs |= i801.StsHostBusy

	x := &xfer{
		xact: s.hstcnt & i801.XactMask,
		irq:  s.hstcnt&i801.CntIntrEn != 0,
		read: s.hstadd&1 != 0,
		addr: s.hstadd >> 1,
		cmd:  s.hstcmd,
	}
	if len(s.faults) > 0 {
		x.fault = s.faults[0]
		s.faults = s.faults[1:]
	}

	switch x.xact {
	case i801.XactI2CBlock:
		// I2C block reads take their command from HSTDAT1 and ignore the
		// address read bit
		x.byteMode = true
		x.read = true
		x.cmd = s.dat1
	case i801.XactBlock:
		x.byteMode = !s.bufferMode()
	}

	if x.byteMode {
		if x.read {
			if t := s.targets[x.addr]; t != nil {
				data, n := t.blockRead(x.cmd)
				x.data = data
				if x.xact == i801.XactBlock {
					s.dat0 = uint8(n)
					x.count = n
				}
			}
		} else {
			x.wlen = max(int(s.dat0), 1)
			x.pending = s.blkdat
		}
		x.inflight = true
	}

	s.active = x
	return x.irq
}

// advanceLocked completes the step currently in flight
func (s *Controller) advanceLocked() {
	x := s.active
	switch x.fault {
	case FaultHang:
		return
	case FaultArbitration:
		s.finishLocked(i801.StsBusErr)
		return
	case FaultFailed:
		s.finishLocked(i801.StsFailed)
		return
	case FaultNoAck:
		s.finishLocked(i801.StsDevErr)
		return
	case FaultPEC:
		s.auxsts |= i801.AuxStsCRCE
		s.finishLocked(i801.StsDevErr)
		return
	}

	t := s.targets[x.addr]
	if t == nil {
		s.finishLocked(i801.StsDevErr)
		return
	}
	if !x.byteMode {
		s.executeLocked(x, t)
		s.finishLocked(i801.StsIntr)
		return
	}
	if !x.inflight {
		return
	}

	x.inflight = false
	if x.read {
		s.blkdat = 0xFF
		if x.idx < len(x.data) {
			s.blkdat = x.data[x.idx]
		}
		x.idx++
		// SMBus block reads also stop by themselves after a valid count
		x.final = s.hstcnt&i801.CntLastByte != 0 || x.idx >= byteLimit ||
			(x.count >= 1 && x.count <= i801.BlockMax && x.idx >= x.count)
	} else {
		x.out = append(x.out, x.pending)
		x.final = len(x.out) >= x.wlen
	}
	s.hststs |= i801.StsByteDone
}

// byteDoneClearedLocked moves a byte-by-byte transfer to its next byte,
// or ends it after the final one
func (s *Controller) byteDoneClearedLocked() bool {
	x := s.active
	if x == nil || !x.byteMode || x.inflight {
		return false
	}
	if x.final {
		if !x.read {
			if t := s.targets[x.addr]; t != nil {
				t.blockWrite(x.cmd, x.out)
			}
		}
		s.finishLocked(i801.StsIntr)
		return x.irq
	}
	if !x.read {
		x.pending = s.blkdat
	}
	x.inflight = true
	return x.irq
}

func (s *Controller) finishLocked(bits uint8) {
	x := s.active
	s.active = nil
	s.hststs = s.hststs&^i801.StsHostBusy | bits
	if x != nil && x.fault == FaultLostInterrupt {
		s.suppressIRQ = true
	}
}

func (s *Controller) executeLocked(x *xfer, t *Target) {
	rw := uint8(0)
	if x.read {
		rw = 1
	}
	packet := []byte{x.addr<<1 | rw, x.cmd}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch x.xact {
	case i801.XactQuick:
		t.quick++
		return
	case i801.XactByte:
		if x.read {
			s.dat0 = t.recv
			packet = append(packet[:1], s.dat0)
		} else {
			t.sent = append(t.sent, x.cmd)
		}
	case i801.XactByteData:
		if x.read {
			s.dat0 = t.regs[x.cmd]
		} else {
			t.regs[x.cmd] = s.dat0
		}
		packet = append(packet, s.dat0)
	case i801.XactWordData:
		if x.read {
			s.dat0, s.dat1 = t.regs[x.cmd], t.regs[x.cmd+1]
		} else {
			t.regs[x.cmd], t.regs[x.cmd+1] = s.dat0, s.dat1
		}
		packet = append(packet, s.dat0, s.dat1)
	case i801.XactBlock:
		if x.read {
			data := t.blocks[x.cmd]
			n, ok := t.declared[x.cmd]
			if !ok {
				n = min(len(data), i801.BlockMax)
			}
			s.dat0 = uint8(n)
			s.blk = [i801.BlockMax]byte{}
			copy(s.blk[:], data)
		} else {
			n := min(max(int(s.dat0), 1), i801.BlockMax)
			t.blocks[x.cmd] = append([]byte(nil), s.blk[:n]...)
		}
		s.blkIdx = 0
		packet = append(packet, s.dat0)
		packet = append(packet, s.blk[:min(int(s.dat0), i801.BlockMax)]...)
	}
	if s.auxctl&i801.AuxCtlCRC != 0 {
		s.pec = protocol.CRC8(0, packet)
	}
}
