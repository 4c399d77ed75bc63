// Package corepacklog provides the leveled console logging used across the
// shim: verbose diagnostics, normal notices and warnings, and errors.
package corepacklog

import (
	"fmt"
	"os"
)

var (
	verbose bool
	quiet   bool
)

// SetVerbose enables or disables verbose diagnostic output.
func SetVerbose(v bool) {
	verbose = v
}

// SetQuiet suppresses normal notices, leaving only errors.
func SetQuiet(q bool) {
	quiet = q
}

// IsVerbose reports whether verbose output is enabled, either via SetVerbose
// or the COREPACK_VERBOSE environment variable.
func IsVerbose() bool {
	return verbose || os.Getenv("COREPACK_VERBOSE") == "1"
}

// IsQuiet reports whether normal notices are suppressed.
func IsQuiet() bool {
	return quiet || os.Getenv("COREPACK_QUIET") == "1"
}

// Verbose prints a diagnostic line when verbose output is enabled.
func Verbose(format string, args ...interface{}) {
	if IsVerbose() {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// Notice prints a one-line notice unless quiet mode is active.
func Notice(format string, args ...interface{}) {
	if !IsQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// Warn prints a warning line prefixed with "!", per the boundary scenarios
// in the specification. Like notices, warnings are suppressed by quiet mode.
func Warn(format string, args ...interface{}) {
	if IsQuiet() {
		return
	}
	fmt.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

// Error prints an error line to stderr. Errors are always shown.
func Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
