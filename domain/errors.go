// notes/domain/errors.go
package domain

import "errors"

// Tree errors. The operation is rejected and the tree is left untouched.
var (
	ErrInvalidName      = errors.New("invalid name")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNotANote         = errors.New("not a note")
	ErrCannotDeleteRoot = errors.New("cannot delete root")
	ErrNotFound         = errors.New("not found")
)

// ErrInvalidSegment is returned by the path codec for empty segments or
// segments containing the separator.
var ErrInvalidSegment = errors.New("invalid path segment")

// Credential errors
var (
	ErrRejected           = errors.New("rejected")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Remote errors are surfaced to the shell and never retried automatically.
var (
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrWriteFailed       = errors.New("write failed")
)

// ErrNoSession is returned by sync operations issued before a session was
// started or after it was stopped.
var ErrNoSession = errors.New("no active session")
