package rt

import (
	"errors"
	"fmt"
)

// Diagnostic is the only text a fatal error ever shows the user.
const Diagnostic = "runtime error"

// ExitFailure is the process status after a fatal error.
const ExitFailure = 1

// ErrorCode identifies the kind of fatal runtime error.
type ErrorCode int

// Stable error codes - do not change values.
const (
	OutOfMemory    ErrorCode = 1001 // RT1001: allocation failed or heap limit exceeded
	ReadError      ErrorCode = 1002 // RT1002: stdin exhausted or malformed
	UserAbort      ErrorCode = 1003 // RT1003: program called error()
	InvalidHandle  ErrorCode = 1004 // RT1004: handle 0 or never allocated
	UseAfterFree   ErrorCode = 1005 // RT1005: access through a released handle
	DoubleFree     ErrorCode = 1006 // RT1006: handle released twice
	ReplayMismatch ErrorCode = 1007 // RT1007: replayed run diverged from its log
	WriteError     ErrorCode = 1008 // RT1008: stdout write failed
)

// String returns the code as "RT1001" format.
func (c ErrorCode) String() string {
	return fmt.Sprintf("RT%d", int(c))
}

// Name returns the symbolic name of the code.
func (c ErrorCode) Name() string {
	switch c {
	case OutOfMemory:
		return "OutOfMemory"
	case ReadError:
		return "ReadError"
	case UserAbort:
		return "UserAbort"
	case InvalidHandle:
		return "InvalidHandle"
	case UseAfterFree:
		return "UseAfterFree"
	case DoubleFree:
		return "DoubleFree"
	case ReplayMismatch:
		return "ReplayMismatch"
	case WriteError:
		return "WriteError"
	default:
		return "Unknown"
	}
}

// ParseErrorCode parses "RT1001" or "OutOfMemory" into an ErrorCode.
func ParseErrorCode(s string) (ErrorCode, bool) {
	for c := OutOfMemory; c <= WriteError; c++ {
		if s == c.String() || s == c.Name() {
			return c, true
		}
	}
	return 0, false
}

// FatalError is a non-recoverable runtime failure. Library calls return it
// instead of terminating the process; the top-level caller hands it to
// Runtime.Fail.
type FatalError struct {
	Code    ErrorCode
	Op      string // runtime operation that failed, e.g. "read_string"
	Message string
	Err     error // underlying cause, may be nil
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	msg := fmt.Sprintf("fatal %s in %s: %s", e.Code, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(code ErrorCode, op, msg string, cause error) *FatalError {
	return &FatalError{Code: code, Op: op, Message: msg, Err: cause}
}

// AsFatal extracts a *FatalError from err's chain.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf returns the fatal error code carried by err.
func CodeOf(err error) (ErrorCode, bool) {
	fe, ok := AsFatal(err)
	if !ok {
		return 0, false
	}
	return fe.Code, true
}

// withOp fills in the operation of a fatal error raised below the runtime
// surface (heap, console) and wraps anything else as code.
func withOp(err error, code ErrorCode, op, msg string) error {
	if err == nil {
		return nil
	}
	if fe, ok := AsFatal(err); ok {
		if fe.Op == "" {
			fe.Op = op
		}
		return fe
	}
	return fatal(code, op, msg, err)
}
