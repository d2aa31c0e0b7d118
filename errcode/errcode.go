package errcode

import (
	"context"
	"errors"
)

// Code is a stable error identifier for the sensor manager.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	NoDevice          Code = "no_device"          // sensor handle or name not found
	InvalidArgument   Code = "invalid_argument"   // unsupported type, malformed threshold, duplicate registration
	CommFailure       Code = "comm_failure"       // bus transaction error surfaced from a driver
	ResourceExhausted Code = "resource_exhausted" // notify pool full
	NotSupported      Code = "not_supported"      // optional driver entry point absent
	Timeout           Code = "timeout"            // sensor lock not acquired in time

	Error Code = "error" // generic fallback
)

// E keeps an operation name, a message and a cause alongside the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil && e.Err != error(e.C) {
		s += " (" + e.Err.Error() + ")"
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is reports a match against a bare Code so that errors.Is(err, NoDevice)
// works for wrapped errors.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// New builds an *E without a cause.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap builds an *E around a cause.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// MapDriverErr translates an error returned by a driver entry point into the
// manager's taxonomy. Errors already carrying a code pass through; anything
// else, including bus timeouts, is a communication failure.
func MapDriverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if c := Of(err); c != Error {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &E{C: CommFailure, Op: op, Msg: "bus timeout", Err: err}
	}
	return &E{C: CommFailure, Op: op, Err: err}
}
