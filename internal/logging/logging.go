package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New builds the process logger. An unknown level falls back to info;
// verbose forces debug and adds caller information.
func New(w io.Writer, level string, verbose bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	if verbose {
		lvl = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		ReportCaller:    verbose,
		Prefix:          "envscan",
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
