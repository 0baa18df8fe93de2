// Package cli dispatches rentora subcommands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Command is one named subcommand.
type Command struct {
	Name        string
	Description string
	Flags       *flag.FlagSet
	Run         func(ctx context.Context, args []string) error
}

// Root dispatches to subcommands. Default runs when no subcommand is named.
type Root struct {
	Name     string
	Default  string
	Out      io.Writer
	commands map[string]*Command
}

// NewRoot builds a dispatcher over cmds.
func NewRoot(name, def string, out io.Writer, cmds ...*Command) *Root {
	r := &Root{Name: name, Default: def, Out: out, commands: make(map[string]*Command, len(cmds))}
	for _, c := range cmds {
		r.commands[c.Name] = c
	}
	return r
}

// Execute runs the subcommand named by args[0].
func (r *Root) Execute(ctx context.Context, args []string) error {
	name := r.Default
	if len(args) > 0 {
		if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
			r.usage()
			return nil
		}
		name, args = args[0], args[1:]
	}
	cmd, ok := r.commands[name]
	if !ok {
		r.usage()
		return fmt.Errorf("unknown command: %s", name)
	}
	if cmd.Flags != nil {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		args = cmd.Flags.Args()
	}
	return cmd.Run(ctx, args)
}

func (r *Root) usage() {
	fmt.Fprintf(r.Out, "Usage: %s <command> [args]\n\nCommands:\n", r.Name)
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.Out, "  %-12s %s\n", name, r.commands[name].Description)
	}
}
