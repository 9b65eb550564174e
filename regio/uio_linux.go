//go:build linux

package regio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"smbmux/logging"
)

// uioPollMs bounds how long the wait loop blocks before checking for Disable
const uioPollMs = 100

// UIOInterrupt delivers interrupts from a Linux UIO device (for example one
// bound with uio_pci_generic). Each read of the device returns the event
// count; writing 1 re-arms the line.
type UIOInterrupt struct {
	path string
	log  *logging.Logger

	mu   sync.Mutex
	fd   int
	quit chan struct{}
	done chan struct{}
}

// NewUIOInterrupt prepares an interrupt source on path (e.g. /dev/uio0)
func NewUIOInterrupt(path string, log *logging.Logger) *UIOInterrupt {
	return &UIOInterrupt{path: path, log: log, fd: -1}
}

// Enable opens the device and starts delivering interrupts to handler
func (u *UIOInterrupt) Enable(handler func()) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fd >= 0 {
		return fmt.Errorf("%s: already enabled", u.path)
	}
	fd, err := unix.Open(u.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", u.path, err)
	}
	if err := u.rearm(fd); err != nil {
		unix.Close(fd)
		return err
	}
	u.fd = fd
	u.quit = make(chan struct{})
	u.done = make(chan struct{})
	go u.loop(fd, handler, u.quit, u.done)
	return nil
}

func (u *UIOInterrupt) rearm(fd int) error {
	var one [4]byte
	binary.NativeEndian.PutUint32(one[:], 1)
	if _, err := unix.Write(fd, one[:]); err != nil {
		return fmt.Errorf("%s: rearm: %w", u.path, err)
	}
	return nil
}

func (u *UIOInterrupt) loop(fd int, handler func(), quit, done chan struct{}) {
	defer close(done)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	var count [4]byte
	for {
		select {
		case <-quit:
			return
		default:
		}
		n, err := unix.Poll(fds, uioPollMs)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			u.log.Errorf("%s: poll: %v", u.path, err)
			return
		}
		if _, err := unix.Read(fd, count[:]); err != nil {
			u.log.Errorf("%s: read: %v", u.path, err)
			return
		}
		handler()
		if err := u.rearm(fd); err != nil {
			u.log.Errorf("%v", err)
			return
		}
	}
}

// Disable stops delivery and closes the device
func (u *UIOInterrupt) Disable() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fd < 0 {
		return
	}
	close(u.quit)
	<-u.done
	unix.Close(u.fd)
	u.fd = -1
}
