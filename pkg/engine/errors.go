package engine

import "errors"

// Errno values used in engine status and result codes. Status and result
// codes carry these negated (e.g. -ENOENT), mirroring kernel-style AIO
// conventions, so the sign of a code is enough to classify it.
const (
	ENOENT    = 2   // object (or operation, for Cancel) does not exist
	EIO       = 5   // backend I/O failure
	EINVAL    = 22  // invalid argument (bad offset, zero-length name, ...)
	ENOSPC    = 28  // backend out of space
	ENOTSUP   = 95  // operation not supported by this engine
	ESHUTDOWN = 108 // engine is shutting down
	ECANCELED = 125 // operation cancelled before it ran
)

var (
	// ErrEngineClosed indicates the engine has been closed and accepts no
	// new completions.
	ErrEngineClosed = errors.New("engine closed")

	// ErrTokenReleased indicates a token was used after Release. This is
	// always a caller bug: tokens are single-owner, single-release.
	ErrTokenReleased = errors.New("completion token already released")
)
