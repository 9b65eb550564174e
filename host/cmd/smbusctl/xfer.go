package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"smbmux/smbus"
)

// withSession runs fn on the shell's session, or on one opened for this
// command alone
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.sess != nil {
		return fn(ctx, a.sess)
	}
	s, err := a.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

func parseUint(s string, bits int, what string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, s)
	}
	return v, nil
}

func parseAddr(s string) (uint16, error) {
	v, err := parseUint(s, 7, "address")
	return uint16(v), err
}

func parseBytes(args []string) ([]byte, error) {
	b := make([]byte, 0, len(args))
	for _, s := range args {
		v, err := parseUint(s, 8, "byte")
		if err != nil {
			return nil, err
		}
		b = append(b, uint8(v))
	}
	return b, nil
}

// xferDef describes one transaction subcommand. Arguments after the
// address are parsed by run.
type xferDef struct {
	use   string
	short string
	args  cobra.PositionalArgs
	run   func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error
}

func transferCommands(a *app) []*cobra.Command {
	defs := []xferDef{
		{"quick ADDR", "Send a quick command", cobra.ExactArgs(1),
			func(ctx context.Context, c *smbus.Client, _ []string, out func(string, ...any)) error {
				return c.Quick(ctx, smbus.Write)
			}},
		{"read-byte ADDR", "Receive one byte", cobra.ExactArgs(1),
			func(ctx context.Context, c *smbus.Client, _ []string, out func(string, ...any)) error {
				v, err := c.ReadByte(ctx)
				if err == nil {
					out("0x%02x", v)
				}
				return err
			}},
		{"write-byte ADDR VALUE", "Send one byte", cobra.ExactArgs(2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				v, err := parseUint(args[0], 8, "value")
				if err != nil {
					return err
				}
				return c.WriteByte(ctx, uint8(v))
			}},
		{"read-byte-data ADDR CMD", "Read a byte register", cobra.ExactArgs(2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				cmd, err := parseUint(args[0], 8, "command")
				if err != nil {
					return err
				}
				v, err := c.ReadByteData(ctx, uint8(cmd))
				if err == nil {
					out("0x%02x", v)
				}
				return err
			}},
		{"write-byte-data ADDR CMD VALUE", "Write a byte register", cobra.ExactArgs(3),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				b, err := parseBytes(args)
				if err != nil {
					return err
				}
				return c.WriteByteData(ctx, b[0], b[1])
			}},
		{"read-word ADDR CMD", "Read a word register", cobra.ExactArgs(2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				cmd, err := parseUint(args[0], 8, "command")
				if err != nil {
					return err
				}
				v, err := c.ReadWordData(ctx, uint8(cmd))
				if err == nil {
					out("0x%04x", v)
				}
				return err
			}},
		{"write-word ADDR CMD VALUE", "Write a word register", cobra.ExactArgs(3),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				cmd, err := parseUint(args[0], 8, "command")
				if err != nil {
					return err
				}
				v, err := parseUint(args[1], 16, "value")
				if err != nil {
					return err
				}
				return c.WriteWordData(ctx, uint8(cmd), uint16(v))
			}},
		{"read-block ADDR CMD", "Read an SMBus block", cobra.ExactArgs(2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				cmd, err := parseUint(args[0], 8, "command")
				if err != nil {
					return err
				}
				b, err := c.ReadBlockData(ctx, uint8(cmd))
				if err == nil {
					out("% x", b)
				}
				return err
			}},
		{"write-block ADDR CMD BYTE...", "Write an SMBus block", cobra.RangeArgs(3, smbus.BlockMax+2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				b, err := parseBytes(args)
				if err != nil {
					return err
				}
				return c.WriteBlockData(ctx, b[0], b[1:])
			}},
		{"read-i2c-block ADDR CMD LEN", "Read an I2C block", cobra.ExactArgs(3),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				cmd, err := parseUint(args[0], 8, "command")
				if err != nil {
					return err
				}
				n, err := parseUint(args[1], 8, "length")
				if err != nil {
					return err
				}
				b, err := c.ReadI2CBlockData(ctx, uint8(cmd), int(n))
				if err == nil {
					out("% x", b)
				}
				return err
			}},
		{"write-i2c-block ADDR CMD BYTE...", "Write an I2C block", cobra.RangeArgs(3, smbus.BlockMax+2),
			func(ctx context.Context, c *smbus.Client, args []string, out func(string, ...any)) error {
				b, err := parseBytes(args)
				if err != nil {
					return err
				}
				return c.WriteI2CBlockData(ctx, b[0], b[1:])
			}},
	}

	cmds := make([]*cobra.Command, 0, len(defs))
	for _, def := range defs {
		cmds = append(cmds, newXferCmd(a, def))
	}
	return cmds
}

func newXferCmd(a *app, def xferDef) *cobra.Command {
	var pec bool
	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Args:  def.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			var flags smbus.ClientFlags
			if pec {
				flags |= smbus.FlagPEC
			}
			out := func(format string, v ...any) {
				fmt.Fprintf(cmd.OutOrStdout(), format+"\n", v...)
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				return def.run(ctx, s.client(addr, flags), args[1:], out)
			})
		},
	}
	cmd.Flags().BoolVar(&pec, "pec", false, "append a packet error code")
	return cmd
}
