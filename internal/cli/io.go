package cli

import (
	"fmt"
	"io"
)

// IO carries stdout/stderr for one command invocation plus a small
// deferred-warning buffer: warnings accrued during a build are flushed to
// stderr both before and after normal output, so they stay visible
// whether or not the operator's terminal scrolls past them.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO creates an IO writing to out/errOut.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a non-fatal issue to be shown to the operator (e.g. "input
// already %VTOR-aligned; --vtor-align had no effect").
func (o *IO) Warn(msg string) {
	o.warnings = append(o.warnings, msg)
}

// Println writes to stdout, flushing any pending warnings to stderr first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	fmt.Fprintln(o.out, a...) //nolint:errcheck // best-effort CLI output
}

// Printf writes formatted output to stdout, flushing any pending warnings
// to stderr first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	fmt.Fprintf(o.out, format, a...) //nolint:errcheck // best-effort CLI output
}

// ErrPrintln writes to stderr, unconditionally (not gated by warnings).
func (o *IO) ErrPrintln(a ...any) {
	fmt.Fprintln(o.errOut, a...) //nolint:errcheck // best-effort CLI output
}

// ErrWriter returns the stderr writer, for callers (e.g. a --verbose
// slog.Logger) that need an io.Writer rather than IO's own print methods.
func (o *IO) ErrWriter() io.Writer { return o.errOut }

// Finish re-flushes every warning to stderr at the end of the run, so
// warnings survive output that scrolled past the start flush.
func (o *IO) Finish() {
	for _, w := range o.warnings {
		fmt.Fprintln(o.errOut, "warning:", w) //nolint:errcheck // best-effort CLI output
	}
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			fmt.Fprintln(o.errOut, "warning:", w) //nolint:errcheck // best-effort CLI output
		}

		o.started = true
	}
}
