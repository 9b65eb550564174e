package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively on one open controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				a.sess = s
				defer func() { a.sess = nil }()
				return a.shell(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func (a *app) shell(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		args, err := shlex.Split(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return nil
		case "trace":
			if a.sess.ctrl != nil {
				a.sess.ctrl.DumpTrace(func(line string) { fmt.Fprintln(out, line) })
			}
			continue
		}

		root := &cobra.Command{Use: "smbusctl", SilenceUsage: true, SilenceErrors: true}
		root.AddCommand(commands(a)...)
		root.SetArgs(args)
		root.SetIn(in)
		root.SetOut(out)
		root.SetErr(out)
		if err := root.ExecuteContext(ctx); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}
