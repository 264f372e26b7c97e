// Package badger implements an asynchronous engine persisting objects in an
// embedded BadgerDB key-value store. Each object is stored whole under one
// key; writes are read-modify-write transactions, so an engine instance must
// be the only writer for its database directory.
package badger

import (
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/engine"
)

// DefaultWorkers is the worker pool size used when Config.Workers is zero.
const DefaultWorkers = 4

const opQueueDepth = 128

// keyPrefix namespaces object keys so the database can be shared with other
// record types later.
const keyPrefix = "obj/"

// Config configures a badger engine.
type Config struct {
	// Dir is the BadgerDB data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence. Useful for tests
	// that want a real storage engine.
	InMemory bool

	// Workers is the number of goroutines performing operations (default 4).
	Workers int
}

type op struct {
	kind   string
	object string
	token  engine.Token
	buf    []byte
	data   []byte
	offset uint64
}

// Engine is a BadgerDB-backed engine.Engine implementation.
type Engine struct {
	table *engine.Table
	db    *badgerdb.DB

	mu     sync.Mutex
	closed bool

	ops chan op
	wg  sync.WaitGroup

	// dispatching counts in-progress queue sends so Close can wait for
	// them before closing the channel.
	dispatching sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// New opens the database and starts the worker pool.
func New(cfg Config) (*Engine, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger: Config.Dir is required for on-disk mode")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	dbOpts := badgerdb.DefaultOptions(cfg.Dir).WithLogger(quietLogger{})
	if cfg.InMemory {
		dbOpts = dbOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		table: engine.NewTable(),
		db:    db,
		ops:   make(chan op, opQueueDepth),
	}
	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}
	logger.Debug("badger engine started",
		logger.KeyEngine, "badger", logger.KeyWorkers, cfg.Workers)
	return e, nil
}

func objectKey(object string) []byte {
	return append([]byte(keyPrefix), object...)
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for o := range e.ops {
		// The token's owner may have cancelled, drained and released it
		// while the op sat in the queue; Pending/TryComplete tolerate
		// released tokens where IsComplete/Complete would panic.
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
	var n int
	err := e.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(objectKey(o.object))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if o.offset >= uint64(len(val)) {
				n = 0
				return nil
			}
			n = copy(o.buf, val[o.offset:])
			return nil
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return -engine.ENOENT
	}
	if err != nil {
		logger.Error("badger read failed",
			logger.KeyObject, o.object, logger.KeyOffset, o.offset, logger.KeyError, err)
		return -engine.EIO
	}
	return n
}

// performWrite rewrites the whole object value with the new range applied.
// Badger's Update transactions serialize conflicting writers, so concurrent
// writes to one object from a single engine stay consistent.
func (e *Engine) performWrite(o op) int {
	err := e.db.Update(func(txn *badgerdb.Txn) error {
		key := objectKey(o.object)

		var current []byte
		item, err := txn.Get(key)
		switch {
		case err == nil:
			current, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			// New object.
		default:
			return err
		}

		end := o.offset + uint64(len(o.data))
		if uint64(len(current)) < end {
			grown := make([]byte, end)
			copy(grown, current)
			current = grown
		}
		copy(current[o.offset:], o.data)
		return txn.Set(key, current)
	})
	if err != nil {
		logger.Error("badger write failed",
			logger.KeyObject, o.object, logger.KeyOffset, o.offset, logger.KeyError, err)
		if errors.Is(err, badgerdb.ErrTxnTooBig) {
			return -engine.ENOSPC
		}
		return -engine.EIO
	}
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

// Close drains the worker pool and closes the database. Queued operations
// still run so their callbacks fire; new dispatches fail with -ESHUTDOWN.
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

	err := e.db.Close()
	logger.Debug("badger engine closed", logger.KeyEngine, "badger")
	return err
}

// quietLogger suppresses badger's debug and info chatter, routing warnings
// and errors through the repository logger.
type quietLogger struct{}

func (quietLogger) Errorf(f string, v ...interface{}) {
	logger.Error("badger: " + fmt.Sprintf(f, v...))
}

func (quietLogger) Warningf(f string, v ...interface{}) {
	logger.Warn("badger: " + fmt.Sprintf(f, v...))
}
func (quietLogger) Infof(string, ...interface{})        {}
func (quietLogger) Debugf(string, ...interface{})       {}
