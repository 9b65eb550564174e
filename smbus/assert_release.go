//go:build !smbusdebug

package smbus

func contractViolation(err error, addr uint16) error {
	return err
}
