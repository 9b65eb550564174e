package sim

import (
	"sync"

	"smbmux/i801"
)

// Target is a slave device on the simulated bus: a 256-byte register file
// for byte and word access, per-command block storage, and a receive byte.
type Target struct {
	mu       sync.Mutex
	regs     [256]byte
	blocks   map[uint8][]byte
	declared map[uint8]int
	recv     uint8
	sent     []uint8
	quick    int
}

// NewTarget returns an empty target
func NewTarget() *Target {
	return &Target{
		blocks:   make(map[uint8][]byte),
		declared: make(map[uint8]int),
	}
}

func (t *Target) SetReg(cmd, v uint8) {
	t.mu.Lock()
	t.regs[cmd] = v
	t.mu.Unlock()
}

func (t *Target) Reg(cmd uint8) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs[cmd]
}

// SetWord stores v little-endian at cmd and cmd+1
func (t *Target) SetWord(cmd uint8, v uint16) {
	t.mu.Lock()
	t.regs[cmd] = uint8(v)
	t.regs[cmd+1] = uint8(v >> 8)
	t.mu.Unlock()
}

func (t *Target) Word(cmd uint8) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint16(t.regs[cmd]) | uint16(t.regs[cmd+1])<<8
}

// SetBlock sets the bytes returned by block reads of cmd
func (t *Target) SetBlock(cmd uint8, data []byte) {
	t.mu.Lock()
	t.blocks[cmd] = append([]byte(nil), data...)
	t.mu.Unlock()
}

// Block returns the bytes stored at cmd by block writes
func (t *Target) Block(cmd uint8) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.blocks[cmd]...)
}

// SetDeclaredLength makes SMBus block reads of cmd announce n bytes
// regardless of how many are stored. A negative n restores the default.
func (t *Target) SetDeclaredLength(cmd uint8, n int) {
	t.mu.Lock()
	if n < 0 {
		delete(t.declared, cmd)
	} else {
		t.declared[cmd] = n
	}
	t.mu.Unlock()
}

// SetReceiveByte sets the value returned by receive-byte reads
func (t *Target) SetReceiveByte(v uint8) {
	t.mu.Lock()
	t.recv = v
	t.mu.Unlock()
}

// Sent returns the bytes received through send-byte writes
func (t *Target) Sent() []uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint8(nil), t.sent...)
}

// Quicks returns the number of quick commands addressed to the target
func (t *Target) Quicks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quick
}

// blockRead returns the stored bytes and the count byte announced for cmd
func (t *Target) blockRead(cmd uint8) ([]byte, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := append([]byte(nil), t.blocks[cmd]...)
	n, ok := t.declared[cmd]
	if !ok {
		n = min(len(data), i801.BlockMax)
	}
	return data, n
}

func (t *Target) blockWrite(cmd uint8, data []byte) {
	t.mu.Lock()
	t.blocks[cmd] = append([]byte(nil), data...)
	t.mu.Unlock()
}
