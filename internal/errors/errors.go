package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitpilot/internal/logger"
)

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Kind categorizes a failed call against the remote habit API.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindUnauthorized    Kind = "unauthorized"
	KindNetwork         Kind = "network"
	KindServer          Kind = "server"
	KindInvalidResponse Kind = "invalid_response"
	KindDecode          Kind = "decode"
)

// ErrUnauthorized matches any RemoteError of kind KindUnauthorized via errors.Is.
var ErrUnauthorized = stderrors.New("unauthorized")

// RemoteError is returned by every remote API call that fails.
type RemoteError struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindUnauthorized
}

// Remote builds a RemoteError. A nil err is replaced by a generic message.
func Remote(op string, kind Kind, status int, err error) *RemoteError {
	if err == nil {
		err = stderrors.New(string(kind))
	}
	return &RemoteError{Op: op, Kind: kind, Status: status, Err: err}
}

// KindOf returns the remote error kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var re *RemoteError
	if stderrors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func IsUnauthorized(err error) bool {
	return stderrors.Is(err, ErrUnauthorized)
}
