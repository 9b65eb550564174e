// Command smbusctl drives an i801 SMBus host controller from user space.
//
// Registers are reached through /dev/port, over a serial link to a register
// bridge, or through a built-in simulator. The i2cdev backend skips the
// controller engine and hands requests to the kernel instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"smbmux/smbus"
)

type options struct {
	configPath string
	envFiles   []string
	backend    string
	device     string
	trace      bool
}

// app carries the global options and, inside the shell, the open session
type app struct {
	opts options
	sess *session
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "smbusctl",
		Short: "Talk to devices on an Intel i801 SMBus controller",
		Long: `smbusctl runs single SMBus transactions, scans the bus, brings up ELAN ` +
			`touchpads and serves a simulated controller to remote hosts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.configPath, "config", "c", "", "JSON configuration file")
	pf.StringSliceVar(&a.opts.envFiles, "env", nil, ".env files with SMBUS_* overrides (default .env if present)")
	pf.StringVarP(&a.opts.backend, "backend", "b", "", "register backend: sim, devport, serial or i2cdev")
	pf.StringVarP(&a.opts.device, "device", "d", "", "backend device (port file, tty or i2c bus number)")
	pf.BoolVar(&a.opts.trace, "trace", false, "dump the transfer trace on exit")

	root.AddCommand(commands(a)...)
	root.AddCommand(newShellCmd(a), newBridgeCmd(a))
	return root
}

// commands returns the subcommands that are also available in the shell
func commands(a *app) []*cobra.Command {
	cmds := transferCommands(a)
	return append(cmds, newScanCmd(a), newElanCmd(a), newAccelCmd(a))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newRootCmd(&app{}).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps SMBus failures to their errno
func exitCode(err error) int {
	var op *smbus.OpError
	if errors.As(err, &op) {
		if code := int(smbus.Errno(err)); code > 0 && code < 126 {
			return code
		}
	}
	return 1
}
