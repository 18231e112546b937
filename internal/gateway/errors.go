package gateway

import "fmt"

// ProtocolError reports a malformed response from a child channel: a
// bad header, a short read, or a missing terminator. Fatal to the
// rewrite.
type ProtocolError struct {
	Channel string
	message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("gateway: protocol error on %s channel: %s", e.Channel, e.message)
}

func newProtocolError(channel, format string, a ...any) *ProtocolError {
	return &ProtocolError{Channel: channel, message: fmt.Sprintf(format, a...)}
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}

// ChildFailure reports a child process that exited with a non-zero
// status. Fatal. It is returned when a channel is closed; the Gateway
// keeps no failed state, so calls made after it is returned are not
// refused.
type ChildFailure struct {
	Channel string
	Err     error
}

func (e *ChildFailure) Error() string {
	return fmt.Sprintf("gateway: %s child failed: %v", e.Channel, e.Err)
}

func (e *ChildFailure) Unwrap() error { return e.Err }

// IsChildFailure reports whether err is a *ChildFailure.
func IsChildFailure(err error) bool {
	_, ok := err.(*ChildFailure)
	return ok
}

// ObjectKindMismatch reports a request to parse an object as a kind it
// is not (e.g. parse_commit on a tree).
type ObjectKindMismatch struct {
	Hash     string
	Wanted   ObjectKind
	Actual   ObjectKind
	Location string
}

func (e *ObjectKindMismatch) Error() string {
	return fmt.Sprintf("gateway: object %q is a %s, not a %s (%s)", e.Hash, e.Actual, e.Wanted, e.Location)
}

// IsObjectKindMismatch reports whether err is an *ObjectKindMismatch.
func IsObjectKindMismatch(err error) bool {
	_, ok := err.(*ObjectKindMismatch)
	return ok
}

// InvalidName reports a tree-entry name containing '/', or a dirty
// child mapping attached to a non-directory mode. Programmer error.
type InvalidName struct {
	Name   string
	Reason string
}

func (e *InvalidName) Error() string {
	return fmt.Sprintf("gateway: invalid tree entry name %q: %s", e.Name, e.Reason)
}

// IsInvalidName reports whether err is an *InvalidName.
func IsInvalidName(err error) bool {
	_, ok := err.(*InvalidName)
	return ok
}

// MissingObject reports a submodule gitlink (or any other reference)
// whose target hash is absent from the object store. By default this
// is a warning (logged via internal/trace) and the entry is treated
// as unchanged; callers that set Options.FailOnMissingObject get this
// error instead.
type MissingObject struct {
	Hash string
	Path string
}

func (e *MissingObject) Error() string {
	return fmt.Sprintf("gateway: object %q referenced at %q is missing from the store", e.Hash, e.Path)
}

// IsMissingObject reports whether err is a *MissingObject.
func IsMissingObject(err error) bool {
	_, ok := err.(*MissingObject)
	return ok
}

// MalformedHistory reports a commit with zero parents where the
// caller's policy required at least one, or more parents than the
// caller's policy permits. Surfaced to the commit filter, which
// decides how to proceed.
type MalformedHistory struct {
	Hash    string
	message string
}

func (e *MalformedHistory) Error() string {
	return fmt.Sprintf("gateway: commit %q has malformed history: %s", e.Hash, e.message)
}

func NewMalformedHistory(hash, format string, a ...any) *MalformedHistory {
	return &MalformedHistory{Hash: hash, message: fmt.Sprintf(format, a...)}
}

// IsMalformedHistory reports whether err is a *MalformedHistory.
func IsMalformedHistory(err error) bool {
	_, ok := err.(*MalformedHistory)
	return ok
}
