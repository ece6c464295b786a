package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger writes log lines to out. Level prefixes are colored when out
// is a terminal and color output is not disabled globally (NO_COLOR).
type ConsoleLogger struct {
	out     io.Writer
	verbose bool
	mu      sync.Mutex

	verbosePrefix string
	errorPrefix   string
}

// NewConsoleLogger creates a ConsoleLogger writing to out (os.Stderr when
// nil). Verbose calls are no-ops unless verbose is true.
func NewConsoleLogger(out io.Writer, verbose bool) *ConsoleLogger {
	if out == nil {
		out = os.Stderr
	}

	dim := color.New(color.Faint)
	red := color.New(color.FgRed, color.Bold)
	if !IsTerminal(out) {
		dim.DisableColor()
		red.DisableColor()
	}

	return &ConsoleLogger{
		out:           out,
		verbose:       verbose,
		verbosePrefix: dim.Sprint("[VERBOSE]") + " ",
		errorPrefix:   red.Sprint("[ERROR]") + " ",
	}
}

// IsTerminal reports whether w is a terminal that should receive colored
// output.
func IsTerminal(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (l *ConsoleLogger) Verbose(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.write(l.verbosePrefix, format, args)
}

func (l *ConsoleLogger) Info(format string, args ...any) {
	l.write("", format, args)
}

func (l *ConsoleLogger) Error(format string, args ...any) {
	l.write(l.errorPrefix, format, args)
}

func (l *ConsoleLogger) write(prefix, format string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(args) > 0 {
		fmt.Fprintf(l.out, prefix+format+"\n", args...)
	} else {
		fmt.Fprint(l.out, prefix+format+"\n")
	}
}
