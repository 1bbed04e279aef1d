package protocol

import "fmt"

// Reason classifies why an envelope was rejected.
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonProtocolMismatch Reason = "protocol_mismatch"
	ReasonVersionMismatch  Reason = "version_mismatch"
	ReasonHashMismatch     Reason = "hash_mismatch"
	ReasonMissingField     Reason = "missing_field"
)

// Error is the envelope-level rejection type. Every failure surfaced by this
// package is an *Error so callers can branch on Reason.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e == nil {
		return "protocol error"
	}
	if e.Detail == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s (%s)", e.Reason, e.Detail)
}

func newError(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the rejection reason from an error, or empty when the
// error did not originate in this package.
func ReasonOf(err error) Reason {
	if perr, ok := err.(*Error); ok && perr != nil {
		return perr.Reason
	}
	return ""
}
