// Package cli is imagebuilder's command framework: unified flag parsing,
// help generation, and IO, adapted from the project's ticket tooling
// command dispatcher down to the create/inspect subcommands this tool
// needs, with Exec's error classified into the tool's exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines one CLI subcommand with unified help generation.
type Command struct {
	// Flags holds the command's own flag set. Command identity comes
	// from Usage, not the FlagSet's own name.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after the binary name,
	// e.g. "create -i <input> -o <output> [flags]".
	Usage string

	// Short is a one-line description shown in the top-level help listing.
	Short string

	// Exec runs the command once flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name: the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the one-line summary shown in top-level help.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-50s %s", c.Usage, c.Short)
}

// PrintHelp prints the command's own usage and flag defaults.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: imagebuilder", c.Usage)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses args against the command's flags and executes it, returning
// a process exit code: 0 success, 1 bad arguments, 2 I/O error, 3 crypto
// failure, 4 input too large.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag's own error/usage output

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		c.PrintHelp(o)

		return exitBadArgs
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return exitCodeFor(err)
	}

	return 0
}
