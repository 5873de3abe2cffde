package mixerr

import (
	"context"
	"errors"
	"fmt"
)

// Error is the single structured failure type surfaced by the SDK. Kind selects the
// variant: a protocol ResultCode, a raw HTTP status, or an SDK-internal failure
// (which carries Code == SdkInternalError).
type Error struct {
	Kind       Kind
	Code       ResultCode
	HTTPStatus int
	Message    string
	Cause      error
}

// Error returns a human-readable description built from the classified code.
func (e *Error) Error() string {
	if e == nil {
		return "mixplay: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind, e.Code, e.HTTPStatus)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches on kind plus result code (or HTTP status) so that callers can compare
// against the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Kind != t.Kind {
		// SDK-internal failures still carry a protocol code.
		if !(isCoded(e.Kind) && isCoded(t.Kind)) {
			return false
		}
	}
	if e.Kind == KindHTTP {
		return e.HTTPStatus == t.HTTPStatus
	}
	return e.Code == t.Code
}

func isCoded(k Kind) bool { return k == KindProtocol || k == KindSDK }

// Sentinels for errors.Is comparisons.
var (
	ErrAuthDenied       = &Error{Kind: KindProtocol, Code: AuthDenied}
	ErrCancelled        = &Error{Kind: KindProtocol, Code: Cancelled}
	ErrInvalidOperation = &Error{Kind: KindProtocol, Code: InvalidOperation}
	ErrInvalidState     = &Error{Kind: KindProtocol, Code: InvalidState}
	ErrObjectExists     = &Error{Kind: KindProtocol, Code: ObjectExists}
	ErrNotConnected     = &Error{Kind: KindProtocol, Code: NotConnected}
	ErrTimedOut         = &Error{Kind: KindProtocol, Code: TimedOut}
	ErrTransportClosed  = &Error{Kind: KindProtocol, Code: TransportClosed}
)

func defaultMessage(kind Kind, code ResultCode, status int) string {
	switch kind {
	case KindHTTP:
		return fmt.Sprintf("mixplay returned the http error code: %d", status)
	case KindSDK:
		return "mixplay sdk error"
	default:
		return fmt.Sprintf("mixplay returned the error: %s (%d)", code, int(code))
	}
}

// FromCode classifies a boundary integer and returns nil for Ok.
func FromCode(code int) error {
	c := Classify(code)
	if c.Success() {
		return nil
	}
	return &Error{Kind: c.Kind, Code: c.Code, HTTPStatus: c.HTTPStatus}
}

// New builds a protocol error with an explicit message.
func New(code ResultCode, message string) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code ResultCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithCause builds a protocol error that wraps cause.
func WithCause(code ResultCode, message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: message, Cause: cause}
}

// HTTP wraps a raw HTTP status.
func HTTP(status int) *Error {
	return &Error{Kind: KindHTTP, HTTPStatus: status}
}

// SDK builds an SDK-internal failure.
func SDK(message string) *Error {
	return &Error{Kind: KindSDK, Code: SdkInternalError, Message: message}
}

// Wrap normalizes any error into *Error. Values already in the taxonomy pass through;
// context errors map onto Cancelled and TimedOut; everything else becomes Error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var mixErr *Error
	if errors.As(err, &mixErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WithCause(TimedOut, "mixplay: operation timed out", err)
	case errors.Is(err, context.Canceled):
		return WithCause(Cancelled, "mixplay: operation cancelled", err)
	default:
		return WithCause(GeneralError, "mixplay: operation failed", err)
	}
}

// IsHTTP reports whether err carries a raw HTTP status.
func IsHTTP(err error) bool {
	var mixErr *Error
	return errors.As(err, &mixErr) && mixErr.Kind == KindHTTP
}

// IsProtocol reports whether err carries a protocol ResultCode, including SDK-internal failures.
func IsProtocol(err error) bool {
	var mixErr *Error
	return errors.As(err, &mixErr) && isCoded(mixErr.Kind)
}

// CodeOf returns the ResultCode carried by err; HTTP failures report HttpError and
// foreign errors report GeneralError.
func CodeOf(err error) ResultCode {
	if err == nil {
		return Ok
	}
	var mixErr *Error
	if !errors.As(err, &mixErr) {
		return GeneralError
	}
	if mixErr.Kind == KindHTTP {
		return HttpError
	}
	return mixErr.Code
}

// HTTPStatusOf returns the HTTP status carried by err, or 0.
func HTTPStatusOf(err error) int {
	var mixErr *Error
	if errors.As(err, &mixErr) && mixErr.Kind == KindHTTP {
		return mixErr.HTTPStatus
	}
	return 0
}
