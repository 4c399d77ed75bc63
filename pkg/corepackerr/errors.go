// Package corepackerr defines the structured error kinds raised across the
// shim, modeled on the teacher repo's ToolError: every error carries enough
// structure for verbose diagnostics while still rendering the exact
// user-facing string the specification calls for.
package corepackerr

import "fmt"

// Kind identifies one of the error categories from the specification's
// error handling design.
type Kind string

const (
	SpecSyntax         Kind = "SpecSyntax"
	SpecRange          Kind = "SpecRange"
	DevEnginesShape    Kind = "DevEnginesShape"
	NameMismatch       Kind = "NameMismatch"
	DevEnginesMismatch Kind = "DevEnginesMismatch"
	URLForKnownTool    Kind = "URLForKnownTool"
	HashMismatch       Kind = "HashMismatch"
	SignatureFail      Kind = "SignatureFail"
	NetworkDisabled    Kind = "NetworkDisabled"
	CacheReadonly      Kind = "CacheReadonly"
)

// Error is the structured error type raised by every component. Tool and
// Version are best-effort context for verbose logging; they may be empty.
type Error struct {
	Kind    Kind
	Tool    string
	Version string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error wrapping an underlying error.
func Wrap(kind Kind, tool, version string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Version: version, Message: err.Error(), Err: err}
}

// Is reports whether err is a corepackerr.Error of the given kind, so
// callers can branch on error category (e.g. for exit-code mapping) without
// string matching.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else if u, ok := err.(interface{ Unwrap() error }); ok {
		return Is(u.Unwrap(), kind)
	} else {
		return false
	}
	return e.Kind == kind
}
