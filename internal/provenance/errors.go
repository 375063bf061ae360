package provenance

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a state, action, object or slide id does
	// not exist in the graph. The graph is left untouched.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFork is returned when the fork target lies inside the
	// subtree being grafted.
	ErrInvalidFork = errors.New("invalid fork")

	// ErrCommandFailed wraps an error returned by a command function.
	ErrCommandFailed = errors.New("command failed")

	// ErrUnknownFunction is returned when no command is registered under a
	// function id.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrInvalidParameters is returned when a parameter bag fails the
	// command's schema.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrUnreachable is returned by JumpTo when the target shares no
	// ancestor with the current state. No action is executed.
	ErrUnreachable = errors.New("state unreachable")

	// ErrForkedPath is returned by JumpTo when a state on the path has more
	// than one creating action, so the ancestor path is ambiguous.
	ErrForkedPath = errors.New("ambiguous path through forked branch")

	// ErrNotInvertible is returned when undoing an action whose command
	// declared no inverse.
	ErrNotInvertible = errors.New("action has no inverse")

	// ErrClosed is returned for requests submitted to, or pending in, a
	// closed graph.
	ErrClosed = errors.New("provenance graph closed")
)

// OpError records the operation and subject of a failure.
type OpError struct {
	// Op is the public operation: push, undo, jump, fork, ...
	Op string

	// Subject identifies the node involved, e.g. "action#12".
	Subject string

	Err error
}

func (e *OpError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Subject: subject, Err: err}
}

// IsNotFound reports whether err means a missing node.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCommandFailure reports whether err came from a command function.
func IsCommandFailure(err error) bool {
	return errors.Is(err, ErrCommandFailed)
}

// IsUnreachable reports whether a jump found no path.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrForkedPath)
}
