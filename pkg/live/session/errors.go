package session

import "fmt"

// FailureKind categorizes session failures.
type FailureKind string

const (
	// FailPermissionDenied means microphone access was refused.
	FailPermissionDenied FailureKind = "permission_denied"
	// FailChannelError is a transport-level failure on the agent link.
	FailChannelError FailureKind = "channel_error"
	// FailChannelClosed is a graceful remote close.
	FailChannelClosed FailureKind = "channel_closed"
	// FailDecode is a malformed inbound audio payload; absorbed locally.
	FailDecode FailureKind = "decode_failure"
	// FailResourceRelease is a best-effort teardown error; logged only.
	FailResourceRelease FailureKind = "resource_release"
)

// Error is a categorized session failure.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a categorized session error.
func NewError(kind FailureKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
