package aio

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/engine"
	"github.com/quartzfs/objstream/pkg/metrics"
)

const (
	// DefaultChunkSize is the bytes-per-read used when the config leaves
	// ChunkSize zero.
	DefaultChunkSize = 4 << 20

	// DefaultReadConcurrency is the read window used when the config
	// leaves Concurrency zero.
	DefaultReadConcurrency = 2
)

// ReadStreamConfig configures a ReadStream. The zero value is usable.
type ReadStreamConfig struct {
	// ChunkSize is the size of each engine read (default 4MiB).
	ChunkSize int

	// Concurrency is the maximum number of simultaneous in-flight reads
	// (default 2).
	Concurrency int

	// SizeHint, when non-zero, is the caller's guess at the object size.
	// It is not required to be accurate: the stream stops refilling the
	// window past the hint until the hint is disproved by actually reading
	// more bytes, then resumes. Zero means unknown.
	SizeHint uint64

	// Metrics, when non-nil, receives per-operation instrumentation.
	Metrics *metrics.AIOMetrics
}

// readSlot is one entry of the ordered in-flight window: either a pending
// Completion or a resolved (chunk, result) pair.
type readSlot struct {
	c        *Completion // nil once resolved
	buf      []byte
	n        int
	err      error
	resolved bool
}

// ReadStream produces the contents of one object as a lazy, finite sequence
// of chunks in strictly ascending offset order.
//
// The stream pipelines up to Concurrency engine reads at consecutive
// chunk-aligned offsets and always yields from the head of the window, so a
// late-completing early read withholds later ones. The first short read
// (fewer bytes than ChunkSize) is the final chunk: remaining in-flight reads
// are dropped through Completion's safe teardown and the stream is done. An
// operation error is delivered once, in order, and also ends the stream.
//
// A ReadStream is forward-only and not restartable; create a new one to
// re-read. It is not safe for concurrent use.
type ReadStream struct {
	eng    engine.Engine
	object string
	id     string

	chunkSize   int
	concurrency int
	sizeHint    uint64

	inFlight []*readSlot
	next     uint64 // issue cursor: offset of the next read to dispatch
	yielded  uint64 // bytes handed to the consumer so far
	done     bool
	failed   bool // a dispatch failed; never issue again

	met *metrics.AIOMetrics
}

// NewReadStream creates a stream over object and issues the first window of
// reads immediately, without waiting for the first Next.
func NewReadStream(eng engine.Engine, object string, cfg ReadStreamConfig) *ReadStream {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultReadConcurrency
	}

	s := &ReadStream{
		eng:         eng,
		object:      object,
		id:          uuid.New().String(),
		chunkSize:   cfg.ChunkSize,
		concurrency: cfg.Concurrency,
		sizeHint:    cfg.SizeHint,
		met:         cfg.Metrics,
	}
	s.maybeIssue()
	return s
}

// wantMore reports whether the window should grow. At least one read is
// always kept in flight; beyond that the window fills up to the concurrency
// limit unless a size hint says the object should already have ended (and
// the hint has not been disproved by yielding past it).
func (s *ReadStream) wantMore() bool {
	if len(s.inFlight) == 0 {
		return true
	}
	if len(s.inFlight) >= s.concurrency {
		return false
	}
	if s.sizeHint == 0 {
		return true
	}
	return s.next < s.sizeHint || s.yielded > s.sizeHint
}

// maybeIssue refills the window. The cursor advances at issue time, so
// concurrent reads always target disjoint ranges. A synchronous dispatch
// failure is materialized as a resolved error slot: it is delivered in
// order, once everything issued before it has been yielded. That item is
// a *DispatchError rather than an *OperationError — the read never
// started, so no result code exists — and Errno extracts the code from
// either, so callers classifying by errno see no difference.
func (s *ReadStream) maybeIssue() {
	for !s.done && !s.failed && s.wantMore() {
		offset := s.next
		s.next += uint64(s.chunkSize)

		buf := make([]byte, s.chunkSize)
		c, err := NewCompletion(s.eng, "read", s.object, func(t engine.Token) int {
			return s.eng.Read(s.object, t, buf, offset)
		})
		if err != nil {
			logger.Debug("read dispatch failed",
				logger.KeyStream, s.id, logger.KeyObject, s.object,
				logger.KeyOffset, offset, logger.KeyError, err)
			s.inFlight = append(s.inFlight, &readSlot{resolved: true, err: err})
			s.failed = true
			return
		}
		s.met.OperationStarted("read")

		slot := &readSlot{c: c, buf: buf}
		// Resolve immediately if the engine completed synchronously.
		if n, done, rerr := c.TryAwait(); done {
			s.resolveSlot(slot, n, rerr)
		}
		s.inFlight = append(s.inFlight, slot)
	}
}

// resolveSlot records a completion result and releases its token.
func (s *ReadStream) resolveSlot(slot *readSlot, n int, err error) {
	slot.c.Close()
	slot.c = nil
	slot.n = n
	slot.err = err
	slot.resolved = true
	if err != nil {
		s.met.OperationCompleted("read", "error")
	} else {
		s.met.OperationCompleted("read", "ok")
		s.met.AddBytes("read", n)
	}
}

// discardInFlight drops every remaining slot, cancelling pending reads.
func (s *ReadStream) discardInFlight() {
	for _, slot := range s.inFlight {
		if slot.c != nil {
			slot.c.Close()
			s.met.OperationCompleted("read", "cancelled")
		}
	}
	s.inFlight = nil
}

// Next returns the next chunk in offset order. It blocks cooperatively on
// the head of the window only; chunks that completed out of order are
// withheld until their turn. The final chunk of a non-empty object may be
// short; after it, and after a terminal error, Next returns io.EOF.
//
// A context error leaves the stream intact: the head read stays in flight
// and Next may be called again (or Close).
func (s *ReadStream) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	s.maybeIssue()
	if len(s.inFlight) == 0 {
		// Defensive: with concurrency >= 1 the window is never empty
		// before done.
		s.done = true
		return nil, io.EOF
	}

	head := s.inFlight[0]
	if !head.resolved {
		n, err := head.c.Await(ctx)
		if !head.c.Resolved() {
			// Context expired; the read is still in flight.
			return nil, err
		}
		s.resolveSlot(head, n, err)
	}
	s.inFlight = s.inFlight[1:]

	if head.err != nil {
		s.done = true
		s.discardInFlight()
		return nil, head.err
	}

	s.yielded += uint64(head.n)

	if head.n < s.chunkSize {
		// Short read: end of object. Anything issued past it is garbage.
		logger.Debug("read stream finished",
			logger.KeyStream, s.id, logger.KeyObject, s.object,
			logger.KeyBytes, s.yielded)
		s.discardInFlight()
		s.done = true
		if head.n == 0 {
			return nil, io.EOF
		}
		return head.buf[:head.n], nil
	}

	s.maybeIssue()
	return head.buf[:head.n], nil
}

// Close drops all in-flight reads and marks the stream done. Pending reads
// are cancelled best-effort and their callbacks drained before their tokens
// are released. Safe to call at any point, including after EOF.
func (s *ReadStream) Close() {
	s.discardInFlight()
	s.done = true
}
