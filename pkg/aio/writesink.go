package aio

import (
	"context"

	"github.com/google/uuid"
	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/bufpool"
	"github.com/quartzfs/objstream/pkg/engine"
	"github.com/quartzfs/objstream/pkg/metrics"
)

// DefaultWriteConcurrency is the write window used when the config leaves
// Concurrency zero.
const DefaultWriteConcurrency = 2

// WriteSinkConfig configures a WriteSink. The zero value is usable.
type WriteSinkConfig struct {
	// Concurrency is the maximum number of simultaneous in-flight writes
	// (default 2).
	Concurrency int

	// Pool supplies staging buffers for accepted items; nil uses the
	// package-level bufpool.
	Pool *bufpool.Pool

	// Metrics, when non-nil, receives per-operation instrumentation.
	Metrics *metrics.AIOMetrics
}

// writeOp is one member of the unordered in-flight set.
type writeOp struct {
	c      *Completion
	buf    []byte // pooled staging copy; returned on resolution
	offset uint64
}

// WriteSink accepts a sequence of byte chunks and writes them to
// consecutive, non-overlapping offsets of one object.
//
// The target offset of each chunk is assigned when Push accepts it, before
// the write is dispatched, so offsets never overlap no matter in which order
// the engine completes the writes. In-flight writes form an unordered set
// bounded by Concurrency; Push blocks (cooperatively) while the set is full.
// No ordering exists or is needed among in-flight writes — their byte ranges
// are disjoint by construction.
//
// Data is durable only once Flush or Close has returned nil: both drain the
// entire in-flight set, not just down to the concurrency limit, and report
// the first error encountered.
//
// Push copies each item into a pooled staging buffer, so the caller's slice
// may be reused immediately after Push returns.
//
// A WriteSink is not safe for concurrent use.
type WriteSink struct {
	eng    engine.Engine
	object string
	id     string

	concurrency int
	inFlight    map[*writeOp]struct{}
	next        uint64 // offset of the next accepted item

	// wake is shared by every in-flight completion as their waker: one
	// signal triggers a rescan of the whole set.
	wake chan struct{}

	pool   *bufpool.Pool
	met    *metrics.AIOMetrics
	closed bool
}

// NewWriteSink creates a sink writing to object starting at offset zero.
func NewWriteSink(eng engine.Engine, object string, cfg WriteSinkConfig) *WriteSink {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultWriteConcurrency
	}
	return &WriteSink{
		eng:         eng,
		object:      object,
		id:          uuid.New().String(),
		concurrency: cfg.Concurrency,
		inFlight:    make(map[*writeOp]struct{}),
		wake:        make(chan struct{}, 1),
		pool:        cfg.Pool,
		met:         cfg.Metrics,
	}
}

func (s *WriteSink) getBuf(n int) []byte {
	if s.pool != nil {
		return s.pool.Get(n)
	}
	return bufpool.Get(n)
}

func (s *WriteSink) putBuf(buf []byte) {
	if s.pool != nil {
		s.pool.Put(buf)
		return
	}
	bufpool.Put(buf)
}

// resolve releases a finished op's resources and removes it from the set.
func (s *WriteSink) resolve(op *writeOp, n int, err error) {
	op.c.Close()
	s.putBuf(op.buf)
	delete(s.inFlight, op)
	if err != nil {
		s.met.OperationCompleted("write", "error")
	} else {
		s.met.OperationCompleted("write", "ok")
		s.met.AddBytes("write", n)
	}
}

// reapCompleted polls every in-flight write once, removing resolved ones.
// Writes still pending are left with the sink's shared waker registered, so
// the next completion signals s.wake. The first error observed is returned;
// when firstErr already carries one, further errors are logged and dropped
// (the sink reports the first error only).
func (s *WriteSink) reapCompleted(firstErr error) error {
	for op := range s.inFlight {
		n, done, err := op.c.poll(s.wake)
		if !done {
			continue
		}
		s.resolve(op, n, err)
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		} else {
			logger.Debug("write error after first while draining",
				logger.KeySink, s.id, logger.KeyObject, s.object,
				logger.KeyOffset, op.offset, logger.KeyError, err)
		}
	}
	return firstErr
}

// waitAny blocks until some in-flight write completes or ctx expires. Every
// pending op has s.wake registered by the preceding reapCompleted scan, so
// no completion can be missed between scan and wait.
func (s *WriteSink) waitAny(ctx context.Context) error {
	select {
	case <-s.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Push accepts one chunk. It first enforces backpressure — while the
// in-flight set is at the concurrency limit it drives the set, blocking
// cooperatively until a slot frees up — then assigns the chunk the next
// offset, advances the cursor by the chunk's length and dispatches the
// write. Offset assignment happens at accept time even when the dispatch
// then fails, so a retried chunk after a dispatch error targets a fresh
// range; callers that want to reuse the range must create a new sink.
//
// An error return is either a completed write's failure (first observed), a
// *DispatchError for this chunk, or ctx's error.
func (s *WriteSink) Push(ctx context.Context, p []byte) error {
	if s.closed {
		return ErrSinkClosed
	}

	for len(s.inFlight) >= s.concurrency {
		if err := s.reapCompleted(nil); err != nil {
			return err
		}
		if len(s.inFlight) < s.concurrency {
			break
		}
		if err := s.waitAny(ctx); err != nil {
			return err
		}
	}

	offset := s.next
	s.next += uint64(len(p))

	buf := s.getBuf(len(p))
	copy(buf, p)

	c, err := NewCompletion(s.eng, "write", s.object, func(t engine.Token) int {
		return s.eng.Write(s.object, t, buf, offset)
	})
	if err != nil {
		s.putBuf(buf)
		return err
	}
	s.met.OperationStarted("write")

	op := &writeOp{c: c, buf: buf, offset: offset}
	s.inFlight[op] = struct{}{}

	// Fast path: the engine may have completed the write synchronously, in
	// which case no slot needs to stay behind.
	if n, done, werr := c.poll(s.wake); done {
		s.resolve(op, n, werr)
		return werr
	}
	return nil
}

// Flush drains the entire in-flight set, not merely down to the concurrency
// limit, and returns the first error encountered. Writes that were already
// dispatched when an earlier one failed are still driven to completion (so
// no engine resources leak); their errors beyond the first are logged at
// debug level and not reported.
//
// A context error returns early with the remaining writes still in flight;
// the caller may Flush again or Abort.
func (s *WriteSink) Flush(ctx context.Context) error {
	var firstErr error
	for len(s.inFlight) > 0 {
		firstErr = s.reapCompleted(firstErr)
		if len(s.inFlight) == 0 {
			break
		}
		if err := s.waitAny(ctx); err != nil {
			if firstErr != nil {
				return firstErr
			}
			return err
		}
	}
	return firstErr
}

// Close flushes and closes the sink; data is durable once it returns nil.
// If the flush is interrupted by ctx, the remaining in-flight writes are
// aborted (cancelled, drained and released) rather than leaked, and the
// interrupting error is returned.
func (s *WriteSink) Close(ctx context.Context) error {
	if s.closed {
		return ErrSinkClosed
	}
	err := s.Flush(ctx)
	if len(s.inFlight) > 0 {
		s.Abort()
	}
	s.closed = true
	return err
}

// Abort drops every in-flight write without waiting for the drain of the
// whole set: each write is cancelled best-effort, its callback drained and
// its token released. Acknowledged data may or may not have been written.
// The sink is closed afterwards.
func (s *WriteSink) Abort() {
	for op := range s.inFlight {
		op.c.Close()
		s.putBuf(op.buf)
		delete(s.inFlight, op)
		s.met.OperationCompleted("write", "cancelled")
	}
	s.closed = true
}

// InFlight reports the current size of the unordered in-flight set.
func (s *WriteSink) InFlight() int { return len(s.inFlight) }

// Offset returns the offset the next accepted chunk will be written at,
// i.e. the total number of bytes accepted so far.
func (s *WriteSink) Offset() uint64 { return s.next }
