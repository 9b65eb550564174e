//go:build smbusdebug

package smbus

import "fmt"

func contractViolation(err error, addr uint16) error {
	panic(fmt.Sprintf("device registry: %v (address 0x%02x)", err, addr))
}
