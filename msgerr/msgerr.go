// Package msgerr defines the error taxonomy shared by session, dispatch and
// runner.
//
// Every failure that crosses a package boundary is an [*Error] carrying a
// [Kind]. Callers branch on the kind with [Is] instead of matching strings.
package msgerr

import "errors"

// Kind classifies an [Error].
type Kind string

const (
	// KindConfiguration indicates missing or mismatched authorization or an
	// unusable run configuration.
	KindConfiguration Kind = "configuration"
	// KindValidation indicates a malformed send request or bulk item.
	KindValidation Kind = "validation"
	// KindConnection indicates the session is absent, not connected, or did
	// not connect before the wait timeout.
	KindConnection Kind = "connection"
	// KindAuthentication indicates the transport rejected the stored
	// credentials.
	KindAuthentication Kind = "authentication"
	// KindTransport indicates the underlying send call failed.
	KindTransport Kind = "transport"
)

// Error is a classified error.
//
// Message is the human-readable text. Err is the optional cause. When Message
// is empty the cause text is reported as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the message, followed by the cause when both are set.
func (e *Error) Error() string {
	if e == nil {
		return "msgerr: <nil>"
	}
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with a fixed message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind, keeping its text. Wrap returns nil when err
// is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Wrapf prefixes err with message and classifies it under kind.
func Wrapf(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first [*Error] in the chain.
func KindOf(err error) (Kind, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return "", false
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var target *Error
		if !errors.As(err, &target) {
			return false
		}
		if target.Kind == kind {
			return true
		}
		err = target.Err
	}
	return false
}
