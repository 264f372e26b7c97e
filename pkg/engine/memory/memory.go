// Package memory implements an in-process asynchronous engine backed by a
// map of byte slices. Operations are performed by a worker pool, optionally
// with artificial latency, which makes it the engine of choice for tests and
// local development.
package memory

import (
	"math/rand"
	"sync"
	"time"

	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/engine"
)

// DefaultWorkers is the worker pool size used when Config.Workers is zero.
const DefaultWorkers = 4

// opQueueDepth bounds the dispatch queue. Dispatch blocks once the queue is
// full, which only happens when callers run far ahead of the worker pool.
const opQueueDepth = 128

// Config configures a memory engine. The zero value is usable.
type Config struct {
	// Workers is the number of goroutines performing operations (default 4).
	Workers int

	// Latency is added to every operation before it is performed. Useful
	// for exercising completion ordering in tests.
	Latency time.Duration

	// Jitter adds a uniformly random duration in [0, Jitter) on top of
	// Latency, so concurrent operations complete out of order.
	Jitter time.Duration
}

type op struct {
	kind   string // "read" or "write"
	object string
	token  engine.Token
	buf    []byte // read destination
	data   []byte // write source
	offset uint64
}

// Engine is an in-memory engine.Engine implementation.
type Engine struct {
	table *engine.Table
	cfg   Config

	mu      sync.Mutex
	objects map[string][]byte
	closed  bool

	ops chan op
	wg  sync.WaitGroup

	// dispatching counts in-progress queue sends so Close can wait for
	// them before closing the channel.
	dispatching sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// New creates a memory engine and starts its worker pool.
func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	e := &Engine{
		table:   engine.NewTable(),
		cfg:     cfg,
		objects: make(map[string][]byte),
		ops:     make(chan op, opQueueDepth),
	}
	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}
	logger.Debug("memory engine started",
		logger.KeyEngine, "memory", logger.KeyWorkers, cfg.Workers)
	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for o := range e.ops {
		if e.cfg.Latency > 0 || e.cfg.Jitter > 0 {
			d := e.cfg.Latency
			if e.cfg.Jitter > 0 {
				d += time.Duration(rand.Int63n(int64(e.cfg.Jitter)))
			}
			time.Sleep(d)
		}

		// A cancel may have completed the token while the op sat in the
		// queue — and its owner may have drained and released it already,
		// so only the tolerant table accessors are safe here. Performing
		// the I/O would be wasted work at best and, for reads, a write
		// into a buffer the caller may have repurposed.
		if !e.table.Pending(o.token) {
			continue
		}

		var result int
		switch o.kind {
		case "read":
			result = e.performRead(o)
		case "write":
			result = e.performWrite(o)
		}
		e.table.TryComplete(o.token, result)
	}
}

func (e *Engine) performRead(o op) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, ok := e.objects[o.object]
	if !ok {
		return -engine.ENOENT
	}
	if o.offset >= uint64(len(data)) {
		return 0
	}
	return copy(o.buf, data[o.offset:])
}

func (e *Engine) performWrite(o op) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := e.objects[o.object]
	end := o.offset + uint64(len(o.data))
	if uint64(len(data)) < end {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[o.offset:], o.data)
	e.objects[o.object] = data
	return len(o.data)
}

// CreateCompletion implements engine.Engine.
func (e *Engine) CreateCompletion(cb engine.Callback, arg uint64) (engine.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, engine.ErrEngineClosed
	}
	return e.table.Create(cb, arg), nil
}

func (e *Engine) dispatch(o op) int {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return -engine.ESHUTDOWN
	}
	e.table.Arm(o.token)
	e.dispatching.Add(1)
	e.mu.Unlock()

	e.ops <- o
	e.dispatching.Done()
	return 0
}

// Read implements engine.Engine.
func (e *Engine) Read(object string, t engine.Token, buf []byte, offset uint64) int {
	return e.dispatch(op{kind: "read", object: object, token: t, buf: buf, offset: offset})
}

// Write implements engine.Engine.
func (e *Engine) Write(object string, t engine.Token, data []byte, offset uint64) int {
	return e.dispatch(op{kind: "write", object: object, token: t, data: data, offset: offset})
}

// IsComplete implements engine.Engine.
func (e *Engine) IsComplete(t engine.Token) bool { return e.table.IsComplete(t) }

// WaitDrained implements engine.Engine.
func (e *Engine) WaitDrained(t engine.Token) { e.table.WaitDrained(t) }

// ResultCode implements engine.Engine.
func (e *Engine) ResultCode(t engine.Token) int { return e.table.ResultCode(t) }

// Cancel implements engine.Engine.
func (e *Engine) Cancel(t engine.Token) int { return e.table.Cancel(t) }

// Release implements engine.Engine.
func (e *Engine) Release(t engine.Token) { e.table.Release(t) }

// Close drains the worker pool. Queued operations still run to completion so
// their callbacks fire; new dispatches fail with -ESHUTDOWN.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.dispatching.Wait()
	close(e.ops)
	e.wg.Wait()
	logger.Debug("memory engine closed", logger.KeyEngine, "memory")
	return nil
}

// SetObject installs an object's full contents, replacing any previous data.
func (e *Engine) SetObject(object string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[object] = append([]byte(nil), data...)
}

// Object returns a copy of an object's contents and whether it exists.
func (e *Engine) Object(object string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.objects[object]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
