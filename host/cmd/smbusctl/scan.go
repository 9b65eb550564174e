package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"smbmux/smbus"
)

func newScanCmd(a *app) *cobra.Command {
	var first, last string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Probe the bus for responding addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lo, err := parseAddr(first)
			if err != nil {
				return err
			}
			hi, err := parseAddr(last)
			if err != nil {
				return err
			}
			if lo > hi {
				return fmt.Errorf("empty range 0x%02x-0x%02x", lo, hi)
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				found, err := smbus.Scan(ctx, s.t, lo, hi)
				printGrid(cmd.OutOrStdout(), lo, hi, found)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&first, "first", fmt.Sprintf("0x%02x", smbus.ScanFirst), "first address")
	cmd.Flags().StringVar(&last, "last", fmt.Sprintf("0x%02x", smbus.ScanLast), "last address")
	return cmd
}

// printGrid prints found addresses in the i2cdetect layout
func printGrid(w io.Writer, lo, hi uint16, found []uint16) {
	fmt.Fprint(w, "    ")
	for col := 0; col < 16; col++ {
		fmt.Fprintf(w, "  %x", col)
	}
	fmt.Fprintln(w)
	for row := uint16(0); row < 0x80; row += 16 {
		fmt.Fprintf(w, "%02x:", row)
		for addr := row; addr < row+16; addr++ {
			switch {
			case addr < lo || addr > hi:
				fmt.Fprint(w, "   ")
			case slices.Contains(found, addr):
				fmt.Fprintf(w, " %02x", addr)
			default:
				fmt.Fprint(w, " --")
			}
		}
		fmt.Fprintln(w)
	}
}
