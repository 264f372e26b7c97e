// Package aio bridges a callback-based asynchronous storage engine into
// cooperative completions, an ordered read stream and a bounded write sink.
//
// The engine (pkg/engine) completes operations by firing a callback from one
// of its own internal threads. Everything in this package is driven by a
// single polling goroutine; the only cross-thread traffic is the engine
// callback, and it is fenced entirely through a per-completion waker slot:
// a mutex-guarded cell holding at most one signal channel. The poller holds
// the slot lock across its "is the operation complete?" check and the
// registration of its waker, so the callback can never fire in the gap
// between the two — the classic lost-wakeup race.
//
// Three layers build on that:
//
//   - Completion wraps one in-flight operation as a pollable future with
//     safe teardown (cancel if needed, always wait for the engine to drain
//     the callback, then release the token).
//   - ReadStream pipelines a bounded window of chunk reads and yields the
//     chunks strictly in offset order, ending at the first short read.
//   - WriteSink accepts chunks, assigns offsets at accept time, keeps a
//     bounded unordered set of in-flight writes for backpressure, and
//     drains everything on Flush/Close.
//
// ObjectReader and ObjectWriter adapt the stream and sink to io.ReadCloser
// and io.WriteCloser.
package aio
