package wire

import (
	"fmt"

	"github.com/buckyos/cyfs-ndn-core/pkg/constants"
)

// Error is the protocol-level error carried in RPC responses. It wraps
// one of the ErrorKind codes with a human-readable reason and an
// optional retry-after hint.
type Error struct {
	Kind       constants.ErrorKind `cbor:"kind"`
	Reason     string              `cbor:"reason"`
	RetryAfter *uint32             `cbor:"retry_after,omitempty"`
}

func NewError(kind constants.ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func NewErrorWithRetry(kind constants.ErrorKind, reason string, retryAfterSeconds uint32) *Error {
	return &Error{Kind: kind, Reason: reason, RetryAfter: &retryAfterSeconds}
}

func (e *Error) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("%s: %s (retry after %ds)", e.Kind, e.Reason, *e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// IsRetryable reports whether the error kind is one §7 classifies as
// recoverable by retry.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case constants.ErrTimeout, constants.ErrIoError, constants.ErrConnectFailed,
		constants.ErrConnectionReset:
		return true
	default:
		return e.RetryAfter != nil
	}
}

func ErrNotFound(reason string) *Error          { return NewError(constants.ErrNotFound, reason) }
func ErrPermissionDenied(reason string) *Error  { return NewError(constants.ErrPermissionDenied, reason) }
func ErrConnectFailed(reason string) *Error     { return NewError(constants.ErrConnectFailed, reason) }
func ErrConnectionReset(reason string) *Error   { return NewError(constants.ErrConnectionReset, reason) }
func ErrTimeout(reason string) *Error           { return NewError(constants.ErrTimeout, reason) }
func ErrAborted(reason string) *Error           { return NewError(constants.ErrAborted, reason) }
func ErrInvalidFormat(reason string) *Error     { return NewError(constants.ErrInvalidFormat, reason) }
