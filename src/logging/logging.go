package logging

import (
	"io"
	"time"

	clog "github.com/charmbracelet/log"
)

// New returns the logger shared by every component of a run. Verbose
// enables debug output, which includes lifecycle state transitions.
func New(w io.Writer, verbose bool) *clog.Logger {
	l := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if verbose {
		l.SetLevel(clog.DebugLevel)
	}
	return l
}

// Discard is a logger for callers that do not care about output.
func Discard() *clog.Logger {
	return clog.New(io.Discard)
}
