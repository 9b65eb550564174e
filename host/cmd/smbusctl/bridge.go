package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"smbmux/host/serial"
	"smbmux/logging"
	"smbmux/regio"
	"smbmux/sim"
)

func newBridgeCmd(a *app) *cobra.Command {
	var baud int
	cmd := &cobra.Command{
		Use:   "bridge TTY",
		Short: "Serve a simulated controller to a remote smbusctl over a serial port",
		Long: `bridge answers register reads and writes arriving on TTY from the ` +
			`simulated controller and forwards its interrupts. Point another smbusctl ` +
			`at the other end with --backend serial.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := logging.Std("bridge", cfg.Level())
			log.StartAsync()
			defer log.Close()

			pcfg := serial.DefaultConfig(args[0])
			pcfg.Baud = baud
			port, err := serial.Open(pcfg)
			if err != nil {
				return err
			}
			hw := sim.New(simBase)
			defer hw.Close()
			populate(hw)

			fmt.Fprintf(cmd.OutOrStdout(), "serving simulated controller at 0x%04x on %s\n", hw.Base(), args[0])
			err = regio.NewBridge(port, hw, hw, hw, log).Serve(cmd.Context())
			if errors.Is(err, cmd.Context().Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&baud, "baud", serial.DefaultBaud, "baud rate")
	return cmd
}
