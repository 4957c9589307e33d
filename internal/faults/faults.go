// Package faults defines the error taxonomy shared by the transport, cloud
// clients and the control loop.
package faults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind string

// Error kinds.
const (
	// KindConfiguration is fatal and surfaced to the operator, never retried.
	KindConfiguration Kind = "CONFIGURATION"
	// KindConnectivity is retried indefinitely by the supervisor.
	KindConnectivity Kind = "CONNECTIVITY"
	// KindService is a non-success status or malformed payload from a cloud endpoint.
	KindService Kind = "SERVICE"
	// KindPartialResult marks one failed lookup inside a batch; it is absorbed locally.
	KindPartialResult Kind = "PARTIAL_RESULT"
)

// ErrBadRequest marks a command that the client got wrong. The control loop
// answers it with a 4xx status and does not treat it as a fault.
var ErrBadRequest = errors.New("bad request")

// Error carries a kind, the failing operation and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Configuration returns a KindConfiguration error.
func Configuration(op, message string) *Error {
	return newError(KindConfiguration, op, message, nil)
}

// Connectivity wraps cause as a KindConnectivity error.
func Connectivity(op string, cause error) *Error {
	return newError(KindConnectivity, op, "", cause)
}

// Service returns a KindService error.
func Service(op, message string, cause error) *Error {
	return newError(KindService, op, message, cause)
}

// PartialResult wraps cause as a KindPartialResult error.
func PartialResult(op string, cause error) *Error {
	return newError(KindPartialResult, op, "", cause)
}

// BadRequest wraps ErrBadRequest with a client-facing message.
func BadRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsConnectivity reports whether err is a connectivity error.
func IsConnectivity(err error) bool { return KindOf(err) == KindConnectivity }

// IsService reports whether err is a service error.
func IsService(err error) bool { return KindOf(err) == KindService }

// IsTransient reports whether err is the kind of runtime fault the control
// loop recovers from by re-establishing the network connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindConnectivity, KindService:
		return true
	case KindConfiguration:
		return false
	}

	var netErr net.Error
	var rtErr runtime.Error
	switch {
	case errors.As(err, &netErr),
		errors.As(err, &rtErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, net.ErrClosed):
		return true
	}
	return false
}
