package upload

import "errors"

// ErrMalformedUpload is returned when the multipart body cannot be parsed:
// missing boundary, broken part headers or a body ending before the closing
// boundary.
var ErrMalformedUpload = errors.New("malformed upload")

// ErrWriteFailure is returned when a file could not be opened or written by
// the storage backend.
var ErrWriteFailure = errors.New("write failure")

// ErrConnectionAborted is returned when the client went away mid-transfer.
var ErrConnectionAborted = errors.New("connection aborted")

// ErrInvalidSession is returned when the subscriber token is missing or no
// subscriber is registered for it.
var ErrInvalidSession = errors.New("invalid session")
