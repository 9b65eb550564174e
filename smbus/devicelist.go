package smbus

import (
	"fmt"
	"sync"
)

// DeviceList is the address-keyed registry of attached devices.
//
// Lookup is safe from the interrupt handler at any time. The controller
// only mutates the list with its interrupt masked, so the handler never
// sees a device that is being constructed or released.
type DeviceList struct {
	mu   sync.RWMutex
	devs []*Device
}

func (l *DeviceList) indexLocked(addr uint16) int {
	for i, d := range l.devs {
		if d.Addr == addr {
			return i
		}
	}
	return -1
}

// Insert appends dev. A second device at the same address is rejected.
func (l *DeviceList) Insert(dev *Device) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexLocked(dev.Addr) >= 0 {
		return contractViolation(fmt.Errorf("%w: 0x%02x", ErrAddressInUse, dev.Addr), dev.Addr)
	}
	l.devs = append(l.devs, dev)
	return nil
}

// Remove unlinks and returns the device at addr without releasing it
func (l *DeviceList) Remove(addr uint16) (*Device, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(addr)
	if i < 0 {
		return nil, contractViolation(fmt.Errorf("%w: 0x%02x", ErrNoDevice, addr), addr)
	}
	dev := l.devs[i]
	l.devs = append(l.devs[:i], l.devs[i+1:]...)
	return dev, nil
}

func (l *DeviceList) Lookup(addr uint16) *Device {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexLocked(addr); i >= 0 {
		return l.devs[i]
	}
	return nil
}

func (l *DeviceList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.devs)
}

// Addresses returns the attached addresses in insertion order
func (l *DeviceList) Addresses() []uint16 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]uint16, len(l.devs))
	for i, d := range l.devs {
		out[i] = d.Addr
	}
	return out
}

func (l *DeviceList) snapshot() []*Device {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Device(nil), l.devs...)
}

// Teardown empties the list, handing each device to release oldest first
func (l *DeviceList) Teardown(release func(*Device)) {
	l.mu.Lock()
	devs := l.devs
	l.devs = nil
	l.mu.Unlock()
	for _, d := range devs {
		if release != nil {
			release(d)
		}
	}
}
