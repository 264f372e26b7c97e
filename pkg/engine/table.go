package engine

import (
	"fmt"
	"sync"
)

// completion is the per-token bookkeeping shared by every engine
// implementation in this repository.
type completion struct {
	cb  Callback
	arg uint64

	mu       sync.Mutex
	complete bool
	result   int

	// drained is closed once the callback has returned. WaitDrained blocks
	// on it; Release requires it for armed tokens.
	drained chan struct{}

	// armed is set when the token is handed to a dispatch. Unarmed tokens
	// never complete and may be released without draining.
	armed bool
}

// Table implements the token half of the Engine contract: allocation,
// completion delivery, drain tracking, cancellation and release. Engines
// embed a Table and call Complete from their worker goroutines; everything
// else is delegated to it verbatim.
//
// All methods are safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	nextID Token
	tokens map[Token]*completion
}

// NewTable returns an empty completion table.
func NewTable() *Table {
	return &Table{tokens: make(map[Token]*completion)}
}

// Create allocates a token with the given callback and context value.
func (tb *Table) Create(cb Callback, arg uint64) Token {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.nextID++
	t := tb.nextID
	tb.tokens[t] = &completion{
		cb:      cb,
		arg:     arg,
		drained: make(chan struct{}),
	}
	return t
}

// get returns the completion for t. Using a released (or never-created)
// token is a caller bug severe enough to abort: the bridge above relies on
// single-ownership of tokens for its memory-safety argument.
func (tb *Table) get(t Token) *completion {
	c := tb.lookup(t)
	if c == nil {
		panic(fmt.Sprintf("engine: token %d: %v", t, ErrTokenReleased))
	}
	return c
}

// lookup returns the completion for t, or nil once the token has been
// released.
func (tb *Table) lookup(t Token) *completion {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens[t]
}

// Arm marks the token as dispatched. Engines call this from Read/Write once
// they have accepted the operation.
func (tb *Table) Arm(t Token) {
	c := tb.get(t)
	c.mu.Lock()
	c.armed = true
	c.mu.Unlock()
}

// Complete delivers the operation's result: it records the result code,
// invokes the registered callback on the calling goroutine, and then marks
// the token drained. The first Complete for a token wins; later calls (a
// worker racing a Cancel, typically) report false and do nothing, so the
// loser knows its result was discarded.
func (tb *Table) Complete(t Token, result int) bool {
	return tb.complete(tb.get(t), result)
}

// TryComplete is Complete for engine workers racing completion teardown:
// the token's owner may cancel, drain and release it while the operation
// still sits in a dispatch queue, after which the token no longer exists.
// TryComplete reports false for a released token instead of panicking.
// Everywhere outside an engine's worker path, Complete's panic is the
// right behavior.
func (tb *Table) TryComplete(t Token, result int) bool {
	c := tb.lookup(t)
	if c == nil {
		return false
	}
	return tb.complete(c, result)
}

func (tb *Table) complete(c *completion, result int) bool {
	c.mu.Lock()
	if c.complete {
		c.mu.Unlock()
		return false
	}
	c.complete = true
	c.result = result
	c.mu.Unlock()

	// Callback and drain-close happen outside the completion lock so
	// IsComplete/ResultCode from the poller never block on the callback.
	c.cb(c.arg)
	close(c.drained)
	return true
}

// IsComplete reports whether the operation has completed. Note that a true
// result does not mean the callback has finished; WaitDrained does.
func (tb *Table) IsComplete(t Token) bool {
	c := tb.get(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}

// Pending reports whether t is live and not yet complete. Unlike
// IsComplete it tolerates released tokens, reporting false; engine
// workers use it to skip queued operations whose completion was torn
// down before they were dequeued.
func (tb *Table) Pending(t Token) bool {
	c := tb.lookup(t)
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.complete
}

// WaitDrained blocks until the callback for t has run and returned.
func (tb *Table) WaitDrained(t Token) {
	<-tb.get(t).drained
}

// ResultCode returns the recorded result for a completed operation.
func (tb *Table) ResultCode(t Token) int {
	c := tb.get(t)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete {
		panic(fmt.Sprintf("engine: token %d: result requested before completion", t))
	}
	return c.result
}

// Cancel completes the operation with -ECANCELED if it has not completed
// yet, returning 0. If a real completion won the race it returns -ENOENT,
// which callers must treat as "already finished", not as an error.
func (tb *Table) Cancel(t Token) int {
	if tb.Complete(t, -ECANCELED) {
		return 0
	}
	return -ENOENT
}

// Release frees the token. Armed tokens must be drained first; releasing an
// undrained armed token would let the engine fire a callback whose context
// the caller has already torn down, so it aborts.
func (tb *Table) Release(t Token) {
	c := tb.get(t)

	c.mu.Lock()
	armed := c.armed
	c.mu.Unlock()

	if armed {
		select {
		case <-c.drained:
		default:
			panic(fmt.Sprintf("engine: token %d released before callback drain", t))
		}
	}

	tb.mu.Lock()
	delete(tb.tokens, t)
	tb.mu.Unlock()
}
