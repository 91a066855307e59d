// Package errs implements the runtime's error taxonomy (§7 of the
// specification): every error surfaced across a session boundary carries a
// Kind, the originating node (when applicable), and a human-readable
// message — never a raw panic payload.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for policy decisions and transport translation.
type Kind string

const (
	// Config marks invalid manifests or node parameters. Fatal at session create.
	Config Kind = "Config"
	// Transport marks wire serialization or IPC failures.
	Transport Kind = "Transport"
	// Execution marks a node task failure (including recovered panics).
	Execution Kind = "Execution"
	// Resource marks back-pressure or loan exhaustion, retried with backoff.
	Resource Kind = "Resource"
	// InvalidState marks API misuse (e.g. send after close).
	InvalidState Kind = "InvalidState"
	// NotFound marks a missing session, peer, or stream.
	NotFound Kind = "NotFound"
)

// Error is the concrete error type returned across session and fabric
// boundaries.
type Error struct {
	Kind    Kind
	NodeID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error with no originating node.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a taxonomy error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy Kind and node id to an underlying cause. Panics
// recovered at the node-task boundary are always wrapped this way — a
// panic never propagates past the task that produced it.
func Wrap(kind Kind, nodeID string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, NodeID: nodeID, Message: cause.Error(), Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns Execution, the default taxonomy for
// unclassified failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Execution
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
