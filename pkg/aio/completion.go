package aio

import (
	"context"
	"fmt"

	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/engine"
)

// completionState is the explicit lifecycle of a Completion.
type completionState int

const (
	// stateArmed: the operation is dispatched and nobody has polled yet.
	stateArmed completionState = iota
	// stateWaiting: a waker is (or was) registered, operation still pending.
	stateWaiting
	// stateDrained: the engine is finished with the callback; the result
	// (or teardown) is final.
	stateDrained
)

// Completion wraps one in-flight asynchronous engine operation as a
// pollable future.
//
// A Completion only ever exists around an armed token: NewCompletion
// dispatches the operation itself and fails without producing a Completion
// if the dispatch is rejected. It must be torn down with Close exactly once;
// Close cancels a still-pending operation, always waits for the engine to
// drain the callback, and only then releases the token — the invariant that
// keeps the callback from firing into a freed waker slot.
//
// A Completion is owned by a single polling goroutine and is not safe for
// concurrent use. The engine callback is the only cross-thread party, and it
// touches nothing but the waker slot.
type Completion struct {
	eng    engine.Engine
	token  engine.Token
	slot   *wakerSlot
	handle uint64

	op     string
	object string

	state    completionState
	resolved bool
	result   int
	err      error
	closed   bool
}

// NewCompletion creates a completion token, runs dispatch with it, and
// returns the armed Completion. dispatch must issue exactly one engine
// operation with the token and return the engine's status code; on a
// negative status the token is released immediately, no Completion is
// produced and the returned error is a *DispatchError.
//
// op and object name the operation for errors and logs.
func NewCompletion(eng engine.Engine, op, object string, dispatch func(engine.Token) int) (*Completion, error) {
	slot := &wakerSlot{}
	handle := registerWakerSlot(slot)

	token, err := eng.CreateCompletion(completionTrampoline, handle)
	if err != nil {
		unregisterWakerSlot(handle)
		return nil, fmt.Errorf("%s %q: create completion: %w", op, object, err)
	}

	if status := dispatch(token); status < 0 {
		// The operation never started: no callback will fire, so the
		// unused token can be released without draining.
		eng.Release(token)
		unregisterWakerSlot(handle)
		return nil, &DispatchError{Op: op, Object: object, Errno: -status}
	}

	return &Completion{
		eng:    eng,
		token:  token,
		slot:   slot,
		handle: handle,
		op:     op,
		object: object,
		state:  stateArmed,
	}, nil
}

// poll checks the operation once. When it has completed, poll waits for the
// engine to finish with the callback, reads the result code and returns
// (n, true, err). While it is still pending, poll registers wake in the
// waker slot (replacing any previous waker) and returns done == false; wake
// receives one token when the operation completes.
//
// The slot lock is held across the is-complete check and the waker
// registration as a single step: a callback firing between the two would
// otherwise take no waker and the poller would sleep forever.
func (c *Completion) poll(wake chan<- struct{}) (int, bool, error) {
	if c.resolved {
		return c.result, true, c.err
	}

	c.slot.mu.Lock()
	if !c.eng.IsComplete(c.token) {
		c.slot.wake = wake
		c.slot.mu.Unlock()
		c.state = stateWaiting
		return 0, false, nil
	}
	c.slot.mu.Unlock()

	// "Complete" does not mean the engine is done with our callback;
	// it must be drained before the waker slot may ever be torn down.
	c.eng.WaitDrained(c.token)
	c.state = stateDrained

	rc := c.eng.ResultCode(c.token)
	c.resolved = true
	if rc < 0 {
		c.err = &OperationError{Op: c.op, Object: c.object, Errno: -rc}
	} else {
		c.result = rc
	}
	return c.result, true, c.err
}

// TryAwait is a non-blocking poll: it resolves the completion if the
// operation has already finished and otherwise leaves it untouched.
func (c *Completion) TryAwait() (int, bool, error) {
	return c.poll(nil)
}

// Await blocks cooperatively until the operation completes, returning its
// byte count or error. A context error returns early without resolving the
// completion; the caller may Await again or Close.
//
// Once resolved, Await keeps returning the same result.
func (c *Completion) Await(ctx context.Context) (int, error) {
	wake := make(chan struct{}, 1)
	for {
		n, done, err := c.poll(wake)
		if done {
			return n, err
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Resolved reports whether a result has been observed.
func (c *Completion) Resolved() bool { return c.resolved }

// Close tears the completion down. If the operation is still in flight it is
// cancelled; a cancel that reports "already finished" is not an error, any
// other cancel failure means the engine and this layer disagree about the
// operation's state and it is unsafe to continue. Whatever the cancel
// outcome, Close waits for the engine to drain the callback before releasing
// the token and unregistering the waker handle.
//
// Close is idempotent and must be called for every Completion, resolved or
// not.
func (c *Completion) Close() {
	if c.closed {
		return
	}
	c.closed = true

	if !c.resolved {
		if !c.eng.IsComplete(c.token) {
			if status := c.eng.Cancel(c.token); status != 0 && status != -engine.ENOENT {
				panic(fmt.Sprintf("aio: cancel of in-flight %s on %q returned %d; engine and bridge disagree about operation state",
					c.op, c.object, status))
			}
			logger.Debug("cancelled in-flight operation",
				logger.KeyOp, c.op, logger.KeyObject, c.object, logger.KeyToken, uint64(c.token))
		}
		c.eng.WaitDrained(c.token)
		c.state = stateDrained
	}

	c.eng.Release(c.token)
	unregisterWakerSlot(c.handle)
}
