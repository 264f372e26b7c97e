// Package enginetest provides a deterministic in-memory engine for testing
// the completion-bridging layer.
//
// Unlike the self-driving engines (memory, badger, s3), the mock never
// completes anything on its own: dispatched operations stay pending until
// the test calls Complete, CompleteNext or CompleteAll, which makes
// completion-order and backpressure scenarios reproducible. The mock also
// records every dispatch and verifies the drain-before-release ordering the
// bridge is required to maintain.
package enginetest

import (
	"fmt"
	"sync"

	"github.com/quartzfs/objstream/pkg/engine"
)

// OpKind distinguishes dispatched operation types.
type OpKind string

const (
	OpRead  OpKind = "read"
	OpWrite OpKind = "write"
)

// Record describes one dispatched operation.
type Record struct {
	Kind   OpKind
	Object string
	Offset uint64
	Len    int
	Token  engine.Token
}

// pendingOp is a dispatched, not-yet-completed operation.
type pendingOp struct {
	rec  Record
	buf  []byte // read destination
	data []byte // write payload
}

// Mock is a manually-driven engine.Engine. Zero value is not usable; create
// with New.
type Mock struct {
	table *engine.Table

	mu      sync.Mutex
	objects map[string][]byte
	pending []*pendingOp
	reads   []Record
	writes  []Record

	// drained tracks tokens the caller has waited on, released tracks
	// release order violations.
	waited     map[engine.Token]bool
	armed      map[engine.Token]bool
	violations []string

	// DispatchStatus, when non-nil, is consulted before accepting an
	// operation; a negative return is surfaced as a synchronous dispatch
	// failure and the operation is not recorded as pending.
	DispatchStatus func(r Record) int

	// ResultFor, when non-nil, can force an error result code for an
	// operation at completion time. Non-negative returns are ignored and
	// the I/O is performed normally.
	ResultFor func(r Record) (int, bool)
}

// New returns an empty mock engine.
func New() *Mock {
	return &Mock{
		table:   engine.NewTable(),
		objects: make(map[string][]byte),
		waited:  make(map[engine.Token]bool),
		armed:   make(map[engine.Token]bool),
	}
}

// SetObject seeds object data.
func (m *Mock) SetObject(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
}

// Object returns a copy of the object's current contents.
func (m *Mock) Object(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.objects[name]...)
}

// Reads returns every dispatched read in dispatch order.
func (m *Mock) Reads() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.reads...)
}

// Writes returns every dispatched write in dispatch order.
func (m *Mock) Writes() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.writes...)
}

// PendingCount reports how many dispatched operations have not completed.
func (m *Mock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Violations returns contract violations observed so far (release without
// drain). Tests should assert this is empty at the end.
func (m *Mock) Violations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.violations...)
}

// CreateCompletion implements engine.Engine.
func (m *Mock) CreateCompletion(cb engine.Callback, arg uint64) (engine.Token, error) {
	return m.table.Create(cb, arg), nil
}

func (m *Mock) dispatch(kind OpKind, object string, t engine.Token, buf, data []byte, offset uint64) int {
	n := len(buf)
	if kind == OpWrite {
		n = len(data)
	}
	rec := Record{Kind: kind, Object: object, Offset: offset, Len: n, Token: t}

	if m.DispatchStatus != nil {
		if status := m.DispatchStatus(rec); status < 0 {
			return status
		}
	}

	m.table.Arm(t)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[t] = true
	m.pending = append(m.pending, &pendingOp{rec: rec, buf: buf, data: data})
	if kind == OpRead {
		m.reads = append(m.reads, rec)
	} else {
		m.writes = append(m.writes, rec)
	}
	return 0
}

// Read implements engine.Engine.
func (m *Mock) Read(object string, t engine.Token, buf []byte, offset uint64) int {
	return m.dispatch(OpRead, object, t, buf, nil, offset)
}

// Write implements engine.Engine.
func (m *Mock) Write(object string, t engine.Token, data []byte, offset uint64) int {
	return m.dispatch(OpWrite, object, t, nil, data, offset)
}

// IsComplete implements engine.Engine.
func (m *Mock) IsComplete(t engine.Token) bool { return m.table.IsComplete(t) }

// WaitDrained implements engine.Engine.
func (m *Mock) WaitDrained(t engine.Token) {
	m.table.WaitDrained(t)
	m.mu.Lock()
	m.waited[t] = true
	m.mu.Unlock()
}

// ResultCode implements engine.Engine.
func (m *Mock) ResultCode(t engine.Token) int { return m.table.ResultCode(t) }

// Cancel implements engine.Engine. Cancelled operations are removed from the
// pending queue so later Complete calls do not touch them.
func (m *Mock) Cancel(t engine.Token) int {
	status := m.table.Cancel(t)
	m.mu.Lock()
	m.removePendingLocked(t)
	m.mu.Unlock()
	return status
}

// Release implements engine.Engine.
func (m *Mock) Release(t engine.Token) {
	m.mu.Lock()
	if m.armed[t] && !m.waited[t] {
		m.violations = append(m.violations,
			fmt.Sprintf("token %d released without waiting for callback drain", t))
	}
	delete(m.armed, t)
	delete(m.waited, t)
	m.removePendingLocked(t)
	m.mu.Unlock()

	m.table.Release(t)
}

// Close implements engine.Engine.
func (m *Mock) Close() error { return nil }

func (m *Mock) removePendingLocked(t engine.Token) {
	for i, op := range m.pending {
		if op.rec.Token == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// CompleteNext completes the oldest pending operation, performing its I/O.
// Reports false when nothing is pending.
func (m *Mock) CompleteNext() bool { return m.Complete(0) }

// Complete completes the i-th pending operation (dispatch order). The
// callback runs on the calling goroutine, which is "foreign" from the
// poller's point of view whenever the test drives the mock from a separate
// goroutine.
func (m *Mock) Complete(i int) bool {
	m.mu.Lock()
	if i < 0 || i >= len(m.pending) {
		m.mu.Unlock()
		return false
	}
	op := m.pending[i]
	m.pending = append(m.pending[:i], m.pending[i+1:]...)
	result := m.performLocked(op)
	m.mu.Unlock()

	// A lost race against Cancel is fine: the cancel result stands.
	m.table.Complete(op.rec.Token, result)
	return true
}

// CompleteAll completes every pending operation in dispatch order.
func (m *Mock) CompleteAll() {
	for m.CompleteNext() {
	}
}

// performLocked executes the operation against the object map and returns
// its result code.
func (m *Mock) performLocked(op *pendingOp) int {
	if m.ResultFor != nil {
		if result, ok := m.ResultFor(op.rec); ok {
			if result < 0 {
				return result
			}
		}
	}

	switch op.rec.Kind {
	case OpRead:
		obj, ok := m.objects[op.rec.Object]
		if !ok {
			return -engine.ENOENT
		}
		if op.rec.Offset >= uint64(len(obj)) {
			return 0
		}
		return copy(op.buf, obj[op.rec.Offset:])

	case OpWrite:
		obj := m.objects[op.rec.Object]
		end := op.rec.Offset + uint64(len(op.data))
		if uint64(len(obj)) < end {
			grown := make([]byte, end)
			copy(grown, obj)
			obj = grown
		}
		copy(obj[op.rec.Offset:], op.data)
		m.objects[op.rec.Object] = obj
		return len(op.data)
	}
	return -engine.EINVAL
}

var _ engine.Engine = (*Mock)(nil)
