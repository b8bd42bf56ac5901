// Package logging builds the leveled logger shared by the bidding binaries.
// It is the same logger implementation echo uses, so one instance can be
// handed to the HTTP server and to the rest of the process.
package logging

import (
	"io"
	"strings"

	"github.com/labstack/gommon/log"
)

const header = `${time_rfc3339} ${level} ${prefix}`

// New returns a logger writing to w with the given prefix and level name.
// A nil writer keeps the gommon default (stdout).
func New(prefix, level string, w io.Writer) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)
	l.SetLevel(ParseLevel(level))
	if w != nil {
		l.SetOutput(w)
	}

	return l
}

// ParseLevel maps a level name to a gommon level. Unknown names fall back to INFO.
func ParseLevel(level string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
