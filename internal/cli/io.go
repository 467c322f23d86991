package cli

import (
	"fmt"
	"io"
)

// IO handles command output. Warnings are collected and printed to stderr
// both before the first line of output and again at the end, so they stay
// visible when output is piped through head or tail.
type IO struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

// NewIO creates a new IO instance.
func NewIO(in io.Reader, out, errOut io.Writer) *IO {
	return &IO{in: in, out: out, errOut: errOut}
}

// Stdin returns the command input. It is never nil.
func (o *IO) Stdin() io.Reader {
	if o.in == nil {
		return eofReader{}
	}

	return o.in
}

// Stderr returns an IO whose standard output is o's stderr.
func (o *IO) Stderr() *IO {
	return &IO{in: o.in, out: o.errOut, errOut: o.errOut}
}

// Warn records a warning. Any warning makes the command exit 1, but does
// not suppress normal output.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, fmt.Sprintf("%s: %s", issue, action))
}

// Println writes to stdout. On first call, any collected warnings
// are printed to stderr first.
func (o *IO) Println(a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout. On first call, any collected
// warnings are printed to stderr first.
func (o *IO) Printf(format string, a ...any) {
	o.flushWarningsStart()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// ErrPrintln writes to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Writer returns stdout as an io.Writer for table and template output.
func (o *IO) Writer() io.Writer {
	return stdoutWriter{o}
}

type stdoutWriter struct{ o *IO }

func (w stdoutWriter) Write(p []byte) (int, error) {
	w.o.flushWarningsStart()

	return w.o.out.Write(p)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Finish prints warnings to stderr and returns exit code.
// Returns 1 if any warnings, 0 otherwise.
func (o *IO) Finish() int {
	// If no output happened but we have warnings, print them at "start" position
	o.flushWarningsStart()

	// Always print at end
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}

	if len(o.warnings) > 0 {
		return 1
	}

	return 0
}

func (o *IO) flushWarningsStart() {
	if !o.started && len(o.warnings) > 0 {
		for _, w := range o.warnings {
			_, _ = fmt.Fprintln(o.errOut, "warning:", w)
		}

		o.started = true
	}
}
