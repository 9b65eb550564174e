//go:build !linux

package main

import (
	"errors"

	"smbmux/config"
	"smbmux/logging"
	"smbmux/regio"
	"smbmux/smbus"
)

var errLinuxOnly = errors.New("backend is only available on linux")

func openDevPort(config.Backend, *logging.Logger) (regio.Bus, regio.ConfigSpace, regio.Interrupt, func(), error) {
	return nil, nil, nil, nil, errLinuxOnly
}

func openI2CDev(config.Backend, *logging.Logger) (smbus.Transferer, error) {
	return nil, errLinuxOnly
}
