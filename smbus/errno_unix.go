//go:build unix

package smbus

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errnoTable = []struct {
	err   error
	errno unix.Errno
}{
	{ErrBusy, unix.EBUSY},
	{ErrTimeout, unix.ETIMEDOUT},
	{ErrFailed, unix.EIO},
	{ErrNoResponse, unix.ENXIO},
	{ErrProtocol, unix.EPROTO},
	{ErrBadMessage, unix.EBADMSG},
	{ErrUnsupported, unix.EOPNOTSUPP},
	{ErrArbitrationLost, unix.EAGAIN},
	{ErrAddressInUse, unix.EBUSY},
	{ErrNoDevice, unix.ENODEV},
	{ErrDisabled, unix.ENODEV},
	{ErrClosed, unix.ESHUTDOWN},
}

// Errno returns the Linux errno matching err, 0 for nil, or EIO for errors
// outside this package
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// FromErrno maps an errno reported by the kernel's SMBus layer back onto
// this package's errors
func FromErrno(errno unix.Errno) error {
	switch errno {
	case 0:
		return nil
	case unix.EBUSY:
		return ErrBusy
	case unix.ETIMEDOUT:
		return ErrTimeout
	case unix.ENXIO, unix.EREMOTEIO:
		return ErrNoResponse
	case unix.EPROTO:
		return ErrProtocol
	case unix.EBADMSG:
		return ErrBadMessage
	case unix.EOPNOTSUPP:
		return ErrUnsupported
	case unix.EAGAIN:
		return ErrArbitrationLost
	case unix.ENODEV:
		return ErrNoDevice
	}
	return ErrFailed
}
