package chaterr

import (
	"errors"
	"fmt"
)

// ChatError is a structured error carrying one of the closed Kinds plus
// enough context to serialize either as a {name, args} object or as a
// localized string, per useRawErrorObjects.
type ChatError struct {
	Kind    Kind
	Command string
	Details string
	Cause   error
}

// Error implements error.
func (e *ChatError) Error() string {
	switch {
	case e.Command != "" && e.Details != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Command, e.Details)
	case e.Command != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Command)
	case e.Details != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Details)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ChatError with the same Kind, so
// errors.Is(err, New(KindNoRoom, "")) works as a kind check.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a ChatError of the given kind.
func New(kind Kind, command string) *ChatError {
	return &ChatError{Kind: kind, Command: command}
}

// Newf creates a ChatError of the given kind with formatted details.
func Newf(kind Kind, command, format string, args ...any) *ChatError {
	return &ChatError{Kind: kind, Command: command, Details: fmt.Sprintf(format, args...)}
}

// Wrap wraps a lower-level error (typically from the State store or
// Transport) as a serverError, preserving the cause for logging.
func Wrap(err error, command string) *ChatError {
	if err == nil {
		return nil
	}
	return &ChatError{Kind: KindServerError, Command: command, Cause: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *ChatError.
func KindOf(err error) (Kind, bool) {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// Serialized is the wire representation of a ChatError.
type Serialized struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Serialize renders err either as a {name, args} object (useRawErrorObjects
// = true) or as a flattened human-readable string.
func Serialize(err error, useRawErrorObjects bool) any {
	if err == nil {
		return nil
	}

	var ce *ChatError
	if !errors.As(err, &ce) {
		if useRawErrorObjects {
			return Serialized{Name: string(KindServerError), Args: map[string]any{"message": err.Error()}}
		}
		return err.Error()
	}

	if useRawErrorObjects {
		args := map[string]any{}
		if ce.Command != "" {
			args["command"] = ce.Command
		}
		if ce.Details != "" {
			args["details"] = ce.Details
		}
		return Serialized{Name: string(ce.Kind), Args: args}
	}

	return ce.Error()
}
