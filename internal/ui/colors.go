// Package ui styles the terminal output of the ctw commands. Styling is
// turned off when NO_COLOR is set or stdout is not a terminal, so piped
// output stays plain.
package ui

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// ANSI escape sequences
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	white  = "\033[97m"
)

var enabled atomic.Bool

func init() {
	_, noColor := os.LookupEnv("NO_COLOR")
	fd := os.Stdout.Fd()
	enabled.Store(!noColor && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)))
}

// Enabled reports whether output is styled
func Enabled() bool { return enabled.Load() }

// SetEnabled turns styling on or off and returns the previous setting
func SetEnabled(on bool) bool { return enabled.Swap(on) }

func paint(s string, codes ...string) string {
	if s == "" || !enabled.Load() {
		return s
	}
	return strings.Join(codes, "") + s + reset
}

// Bold is used for table titles and totals
func Bold(s string) string { return paint(s, bold) }

// Heading styles a help section title
func Heading(s string) string { return paint(s, bold, white) }

// Title styles a command name banner
func Title(s string) string { return paint(s, bold, cyan) }

// Accent marks command names and paths
func Accent(s string) string { return paint(s, cyan) }

// Success marks completed work and success outcomes
func Success(s string) string { return paint(s, green) }

// Warn marks fallback outcomes and degraded results
func Warn(s string) string { return paint(s, yellow) }

// Error marks failures
func Error(s string) string { return paint(s, red) }

// Dim is used for secondary text such as descriptions and timestamps
func Dim(s string) string { return paint(s, dim) }
