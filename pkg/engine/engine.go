package engine

// Callback is the process-wide completion trampoline registered with
// CreateCompletion. The engine invokes it exactly once per completed
// operation, from an arbitrary engine-internal thread, passing back the
// opaque context value supplied at creation. Implementations must not block.
type Callback func(arg uint64)

// Token identifies one outstanding asynchronous operation. Tokens are opaque
// to callers: the only valid operations on a token are the methods of the
// Engine that issued it. A token is owned by exactly one completion and must
// be released exactly once.
type Token uint64

// Engine is an asynchronous object-storage engine.
//
// Read and Write return a status code: zero or positive means the operation
// was dispatched and will complete through the token's callback; a negative
// value is a synchronous dispatch failure (negated errno) and the callback
// will never fire for that token.
//
// Result codes reported by ResultCode follow the same convention: a
// non-negative value is the operation's byte count, a negative value is a
// negated errno. A read that returns fewer bytes than requested (including
// zero) signals end of object.
type Engine interface {
	// CreateCompletion allocates a completion token and registers the
	// callback that fires when an operation dispatched with the token
	// completes. The token is unarmed until passed to Read or Write.
	CreateCompletion(cb Callback, arg uint64) (Token, error)

	// Read dispatches an asynchronous read of len(buf) bytes at offset.
	// The engine writes into buf from its own threads until the operation
	// completes; buf must remain valid until the token is released.
	Read(object string, t Token, buf []byte, offset uint64) int

	// Write dispatches an asynchronous write of data at offset. data must
	// remain valid until the token is released.
	Write(object string, t Token, data []byte, offset uint64) int

	// IsComplete reports whether the operation dispatched with t has
	// completed. Safe to call concurrently with the completion callback.
	IsComplete(t Token) bool

	// WaitDrained blocks until the operation has completed and the engine
	// is finished with the token's callback. After WaitDrained returns the
	// callback will never be invoked again for this token.
	WaitDrained(t Token)

	// ResultCode returns the operation's result. Only valid after the
	// operation has completed.
	ResultCode(t Token) int

	// Cancel requests best-effort cancellation of the operation dispatched
	// with t. Returns 0 on success or -ENOENT if the operation had already
	// finished; any other value means the engine and the caller disagree
	// about the operation's state.
	Cancel(t Token) int

	// Release frees the token. Must be called exactly once, after
	// WaitDrained for armed tokens. Unarmed tokens (dispatch failed) may be
	// released immediately.
	Release(t Token)

	// Close shuts the engine down, waiting for in-flight operations to
	// complete their callbacks.
	Close() error
}
