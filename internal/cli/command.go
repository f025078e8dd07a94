// Package cli implements the thin command-dispatch layer on top of the
// repository facade: flag parsing, help generation, and grouped
// subcommands, with behavior delegated entirely to internal/repo and
// its collaborators.
package cli

import (
	"context"
	"errors"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "auxin" in help.
	// Includes the command name and arguments/flags.
	// Examples: "commit -m <message> [flags]", "restore <revision>"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *ioutil.IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return "  " + padRight(c.Usage, 28) + c.Short
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

// PrintHelp prints the full help output for "auxin <cmd> --help".
func (c *Command) PrintHelp(o *ioutil.IO) {
	o.Println("Usage: auxin", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *ioutil.IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.Errorln("error:", err)
		o.Errorln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.Errorln("error:", err)
		return 1
	}

	return 0
}

// Runnable is implemented by both *Command and *Group so the top-level
// dispatcher in Run can treat leaf commands and nested groups uniformly.
type Runnable interface {
	Name() string
	HelpLine() string
	Run(ctx context.Context, o *ioutil.IO, args []string) int
}

// Group dispatches to one of several leaf commands by first positional
// argument, per spec's dynamic sub-command dispatch design note: adding
// a group, or adding a leaf to a group, is purely additive.
type Group struct {
	GroupName string
	Short     string
	Commands  []*Command
}

// Name returns the group's own name (e.g. "lock").
func (g *Group) Name() string { return g.GroupName }

// HelpLine returns the short help line for the main usage display.
func (g *Group) HelpLine() string {
	return "  " + padRight(g.GroupName+" <subcommand>", 28) + g.Short
}

// Run dispatches directly to the matching subcommand's Run and returns
// its exit code unchanged - the subcommand already prints its own error,
// so Group never wraps or duplicates that output.
func (g *Group) Run(ctx context.Context, o *ioutil.IO, args []string) int {
	if len(args) == 0 {
		g.printUsage(o)
		return 1
	}

	sub, ok := g.lookup(args[0])
	if !ok {
		o.Errorln("error: unknown", g.GroupName, "subcommand:", args[0])
		g.printUsage(o)

		return 1
	}

	return sub.Run(ctx, o, args[1:])
}

func (g *Group) lookup(name string) (*Command, bool) {
	for _, c := range g.Commands {
		if c.Name() == name {
			return c, true
		}
	}

	return nil, false
}

func (g *Group) printUsage(o *ioutil.IO) {
	o.Errorln("Usage: auxin", g.GroupName, "<subcommand>")
	o.Errorln()
	o.Errorln("Subcommands:")

	for _, c := range g.Commands {
		o.Errorln(c.HelpLine())
	}
}
