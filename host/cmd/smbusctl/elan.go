package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smbmux/client/elan"
	"smbmux/smbus"
)

func newElanCmd(a *app) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "elan [ADDR]",
		Short: "Initialize an ELAN touchpad and print its reports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := uint16(0x15)
			if len(args) == 1 {
				v, err := parseAddr(args[0])
				if err != nil {
					return err
				}
				addr = v
			}
			out := cmd.OutOrStdout()
			report := func(b []byte) { fmt.Fprintf(out, "report: % x\n", b) }

			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				if s.ctrl == nil {
					// no host notify without the controller engine
					tp := elan.New(s.client(addr, 0), s.log.With("elan"), report)
					if err := tp.Start(ctx); err != nil {
						return err
					}
					fmt.Fprintf(out, "touchpad 0x%02x enabled\n", addr)
					return nil
				}
				return runElan(ctx, s, addr, watch, report, func(format string, v ...any) {
					fmt.Fprintf(out, format, v...)
				})
			})
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "keep printing reports for this long")
	return cmd
}

func runElan(ctx context.Context, s *session, addr uint16, watch time.Duration, report func([]byte), printf func(string, ...any)) error {
	dev := s.ctrl.Device(addr)
	if dev == nil {
		d, err := s.ctrl.Attach(ctx, addr, smbus.FlagHostNotify, map[string]string{"driver": "elan"})
		if err != nil {
			return err
		}
		dev = d
		defer s.ctrl.Detach(context.Background(), addr)
	}
	got := make(chan struct{}, 1)
	forward := func(b []byte) {
		report(b)
		select {
		case got <- struct{}{}:
		default:
		}
	}
	if _, err := elan.Bind(ctx, dev, s.log.With("elan"), forward); err != nil {
		return err
	}
	printf("touchpad 0x%02x enabled\n", addr)

	// the simulated touchpad reports once on request
	if s.hw != nil {
		s.hw.Notify(uint8(addr), 0)
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			printf("no report from simulated touchpad\n")
		case <-ctx.Done():
		}
	}
	if watch > 0 {
		select {
		case <-time.After(watch):
		case <-ctx.Done():
		}
	}
	dev.SetConsumer(nil)
	return nil
}
