// Package logging owns the process-wide leveled logger.
//
// Output always goes to stderr: stdout belongs to the MCP stdio transport.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

const prefix = "walrus-x402"

var (
	logger *log.Logger
	once   sync.Once
)

// Init sets up the global logger. DEBUG=1 enables debug level with caller
// and timestamp reporting.
func Init(debug bool) {
	once.Do(func() {
		logger = New(os.Stderr, debug)
	})
}

// New builds a logger writing to w.
func New(w io.Writer, debug bool) *log.Logger {
	if !debug {
		l := log.NewWithOptions(w, log.Options{Prefix: prefix})
		l.SetLevel(log.InfoLevel)
		return l
	}

	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	l.SetLevel(log.DebugLevel)
	return l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Get returns the global logger, initializing it from the DEBUG variable if
// Init was never called.
func Get() *log.Logger {
	if logger == nil {
		Init(os.Getenv("DEBUG") == "1")
	}
	return logger
}

// OrDefault returns l, or the global logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return Get()
}
