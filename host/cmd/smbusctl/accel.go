package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"tinygo.org/x/drivers/adxl345"

	"smbmux/i2cbus"
)

// ADXL345 power control register and its measure bit
const (
	adxlPowerCtl = 0x2D
	adxlMeasure  = 0x08
)

// newAccelCmd reads an ADXL345 through the TinyGo driver, which only sees
// a drivers.I2C bus
func newAccelCmd(a *app) *cobra.Command {
	var samples int
	cmd := &cobra.Command{
		Use:   "accel [ADDR]",
		Short: "Read raw acceleration from an ADXL345",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := uint16(adxl345.AddressLow)
			if len(args) == 1 {
				v, err := parseAddr(args[0])
				if err != nil {
					return err
				}
				addr = v
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				bus := i2cbus.New(s.t)
				if err := bus.WriteRegister(uint8(addr), adxlPowerCtl, []byte{adxlMeasure}); err != nil {
					return err
				}
				dev := adxl345.New(bus)
				dev.Address = addr
				for i := 0; i < samples; i++ {
					x, y, z := dev.ReadRawAcceleration()
					fmt.Fprintf(cmd.OutOrStdout(), "x=%d y=%d z=%d\n", x, y, z)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&samples, "samples", "n", 1, "number of samples")
	return cmd
}
