package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Run is imagebuilder's entry point. Returns a process exit code.
func Run(out, errOut io.Writer, args []string, commands []*Command) int {
	globalFlags := flag.NewFlagSet("imagebuilder", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")

	if err := globalFlags.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, commands)

		return exitBadArgs
	}

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(out, commands)

		if len(commandAndArgs) == 0 && !*flagHelp {
			return exitBadArgs
		}

		return exitOK
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return exitBadArgs
	}

	cmdIO := NewIO(out, errOut)
	code := cmd.Run(context.Background(), cmdIO, commandAndArgs[1:])
	cmdIO.Finish()

	return code
}

func fprintln(w io.Writer, a ...any) {
	fmt.Fprintln(w, a...) //nolint:errcheck // best-effort CLI output
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "imagebuilder - firmware update image pipeline")
	fprintln(w)
	fprintln(w, "Usage: imagebuilder [-h] <command> [args]")
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
