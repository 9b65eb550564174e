//go:build linux

package main

import (
	"strconv"
	"strings"

	"smbmux/config"
	"smbmux/i2cdev"
	"smbmux/logging"
	"smbmux/regio"
	"smbmux/smbus"
)

func openDevPort(b config.Backend, log *logging.Logger) (regio.Bus, regio.ConfigSpace, regio.Interrupt, func(), error) {
	port, err := regio.OpenPortFile(b.Device, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	path := b.PCIConfig
	if !strings.Contains(path, "/") {
		path = regio.SysfsConfigPath(path)
	}
	pci, err := regio.OpenPCIConfig(path, log)
	if err != nil {
		port.Close()
		return nil, nil, nil, nil, err
	}

	var line regio.Interrupt
	if b.UIO != "" {
		line = regio.NewUIOInterrupt(b.UIO, log.With("uio"))
	}
	closer := func() {
		pci.Close()
		port.Close()
	}
	return port, pci, line, closer, nil
}

func openI2CDev(b config.Backend, log *logging.Logger) (smbus.Transferer, error) {
	index, err := strconv.Atoi(b.Device)
	if err != nil {
		return nil, err
	}
	return i2cdev.New(index, log.With("i2c-"+b.Device)), nil
}
