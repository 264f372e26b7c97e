package aio

import "sync"

// wakerSlot is the single mutable cell shared between the poller and the
// engine callback. The poller writes a waker while the operation is pending;
// the callback takes (removes) it when the operation completes. Every access
// goes through mu: holding it across the is-complete check and the waker
// registration in Completion.poll is what makes a lost wakeup impossible.
type wakerSlot struct {
	mu   sync.Mutex
	wake chan<- struct{}
}

// take removes and returns the registered waker, if any.
func (s *wakerSlot) take() chan<- struct{} {
	s.mu.Lock()
	w := s.wake
	s.wake = nil
	s.mu.Unlock()
	return w
}

// Engines receive an opaque uint64 context value instead of a pointer, so
// waker slots live in a process-wide handle table and the context value is
// the table key. A handle stays registered until the engine has drained the
// completion's callback, which means a concurrent trampoline lookup finds
// either a live slot or nothing — never a torn-down one.
var wakerHandles = struct {
	mu    sync.Mutex
	next  uint64
	slots map[uint64]*wakerSlot
}{slots: make(map[uint64]*wakerSlot)}

func registerWakerSlot(s *wakerSlot) uint64 {
	wakerHandles.mu.Lock()
	defer wakerHandles.mu.Unlock()
	wakerHandles.next++
	h := wakerHandles.next
	wakerHandles.slots[h] = s
	return h
}

func unregisterWakerSlot(h uint64) {
	wakerHandles.mu.Lock()
	delete(wakerHandles.slots, h)
	wakerHandles.mu.Unlock()
}

func lookupWakerSlot(h uint64) *wakerSlot {
	wakerHandles.mu.Lock()
	defer wakerHandles.mu.Unlock()
	return wakerHandles.slots[h]
}

// completionTrampoline is the one process-wide completion callback handed to
// every engine. It runs on an engine-internal thread; its only job is to
// recover the waker slot from the handle and perform lock/take/wake. It must
// never block and never touch other completion state.
func completionTrampoline(arg uint64) {
	s := lookupWakerSlot(arg)
	if s == nil {
		// Completion already torn down; the drain contract makes this
		// unreachable for well-behaved engines, and a no-op otherwise.
		return
	}
	if w := s.take(); w != nil {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
