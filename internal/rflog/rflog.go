// Package rflog provides the one structured logger shared by both the
// serial shim and the UDP broker.
package rflog

import (
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

// SetVerbose raises the logger to debug level; both binaries call it for
// their long-form-only --verbose flag (-v is --version).
func SetVerbose(verbose bool) {
	if verbose {
		base.SetLevel(log.DebugLevel)
	} else {
		base.SetLevel(log.InfoLevel)
	}
}

// For returns a child logger tagged with the given component name, e.g.
// For("pty"), For("udpclient"), For("reflector").
func For(component string) *log.Logger {
	return base.With("component", component)
}
