// Package bufpool provides a tiered buffer pool for asynchronous I/O
// staging buffers.
//
// WriteSink copies every accepted item into a pool buffer so callers can
// reuse their slice while the write is still in flight; those staging
// buffers churn at the write rate, and pooling them keeps the GC out of the
// hot path. Three size tiers cover the usual shapes:
//
//   - small (4KB): metadata-sized writes
//   - medium (64KB): sub-chunk writes
//   - large (4MB): full chunks, the common case for streaming
//
// Requests above the large tier are allocated directly and never pooled, so
// one oversized transfer cannot pin memory for the life of the process.
//
// All operations are safe for concurrent use (sync.Pool underneath).
package bufpool

import "sync"

// Default buffer size classes.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 4 << 20 // matches the default read/write chunk size
)

// Pool manages byte-slice pools organized by size class.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config overrides the pool's size classes. Zero fields keep the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool creates a buffer pool. A nil config uses the defaults.
func NewPool(cfg *Config) *Pool {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.SmallSize <= 0 {
		c.SmallSize = DefaultSmallSize
	}
	if c.MediumSize <= 0 {
		c.MediumSize = DefaultMediumSize
	}
	if c.LargeSize <= 0 {
		c.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  c.SmallSize,
		mediumSize: c.MediumSize,
		largeSize:  c.LargeSize,
	}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.medium.New = func() any {
		buf := make([]byte, p.mediumSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a byte slice of exactly the requested length, backed by a
// pooled buffer when the size fits a tier. Pair every Get with a Put.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get. Buffers whose capacity matches no
// tier (oversized allocations) are left for the GC.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.mediumSize:
		p.medium.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

// globalPool backs the package-level Get/Put convenience functions.
var globalPool = NewPool(nil)

// Get returns a buffer from the default pool.
func Get(size int) []byte { return globalPool.Get(size) }

// Put returns a buffer to the default pool.
func Put(buf []byte) { globalPool.Put(buf) }
