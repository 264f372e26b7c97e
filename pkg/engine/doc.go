// Package engine defines the contract between the objstream bridging layer
// and an asynchronous object-storage engine.
//
// An engine completes operations by invoking a registered callback from one
// of its own internal worker threads. The bridging layer in pkg/aio converts
// that callback model into cooperative, poll-driven completions; this
// package only specifies what an engine must provide for that conversion to
// be safe:
//
//   - CreateCompletion registers a callback and an opaque context value and
//     returns a Token. The token is "unarmed" until an operation has been
//     dispatched with it.
//   - Read and Write dispatch one asynchronous operation against an armed
//     token. A negative return value is a synchronous dispatch failure: the
//     operation never started and the callback will never fire.
//   - IsComplete, WaitDrained, ResultCode, Cancel and Release operate on a
//     token for the rest of its life. WaitDrained is the load-bearing
//     primitive: once it returns, the engine guarantees it will never touch
//     the token's callback again, which is what makes it safe for the caller
//     to free the callback's context.
//
// Engine implementations in subpackages share the bookkeeping for these
// token operations through Table.
package engine
