package aio

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/quartzfs/objstream/pkg/engine"
	"github.com/quartzfs/objstream/pkg/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStreamOrderedChunks(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789")) // 10 bytes: chunks of 4, 4, 2

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	// The window fills at construction time.
	reads := m.Reads()
	require.Len(t, reads, 2)
	assert.Equal(t, uint64(0), reads[0].Offset)
	assert.Equal(t, uint64(4), reads[1].Offset)

	// Complete the second read before the first; chunks must still come
	// back in offset order.
	require.True(t, m.Complete(1))
	require.True(t, m.Complete(0))

	ctx := context.Background()

	chunk, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(chunk))

	m.CompleteAll()

	chunk, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(chunk))

	m.CompleteAll()

	chunk, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "89", string(chunk), "final chunk may be short")

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)

	// Offsets were strictly ascending and chunk-aligned.
	var prev uint64
	for i, r := range m.Reads() {
		if i > 0 {
			assert.Greater(t, r.Offset, prev)
		}
		assert.Zero(t, r.Offset%4)
		prev = r.Offset
	}
	assert.Empty(t, m.Violations())
}

func TestReadStreamEmptyObject(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", nil)

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	m.CompleteAll()

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err, "empty object yields no chunks, only EOF")
	assert.Empty(t, m.Violations())
}

func TestReadStreamMissingObject(t *testing.T) {
	m := enginetest.New()

	s := NewReadStream(m, "nope", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	m.CompleteAll()

	_, err := s.Next(context.Background())
	require.Error(t, err)

	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, engine.ENOENT, oe.Errno)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, m.Violations())
}

func TestReadStreamDispatchErrorIsFirstItem(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789"))
	m.DispatchStatus = func(r enginetest.Record) int {
		return -engine.EIO
	}

	// The very first dispatch fails: the stream's only item is the error.
	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	_, err := s.Next(context.Background())
	require.Error(t, err)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.EIO, de.Errno)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, m.Violations())
}

func TestReadStreamDispatchErrorMidStream(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789abcdef"))
	m.DispatchStatus = func(r enginetest.Record) int {
		if r.Offset >= 8 {
			return -engine.EIO
		}
		return 0
	}

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	m.CompleteAll()

	ctx := context.Background()

	// Chunks issued before the failure are delivered first, in order.
	chunk, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(chunk))

	m.CompleteAll()

	chunk, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(chunk))

	_, err = s.Next(ctx)
	var de *DispatchError
	require.ErrorAs(t, err, &de)

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, m.Violations())
}

func TestReadStreamSizeHint(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789")) // hint will understate this

	s := NewReadStream(m, "obj", ReadStreamConfig{
		ChunkSize:   4,
		Concurrency: 4,
		SizeHint:    4,
	})
	defer s.Close()

	// The hint caps the initial window at one read despite concurrency 4.
	require.Len(t, m.Reads(), 1)

	ctx := context.Background()

	m.CompleteAll()
	chunk, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(chunk))

	// Still at the hint boundary: one read at a time.
	m.CompleteAll()
	chunk, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(chunk))

	// The full chunk at offset 4 disproved the hint; the window may refill
	// freely now.
	assert.Greater(t, len(m.Reads()), 3)

	m.CompleteAll()
	chunk, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "89", string(chunk))

	_, err = s.Next(ctx)
	assert.Equal(t, io.EOF, err)
	assert.Empty(t, m.Violations())
}

func TestReadStreamContextCancel(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789"))

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 2})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The head read survived the context error.
	m.CompleteAll()
	chunk, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123", string(chunk))
	assert.Empty(t, m.Violations())
}

func TestReadStreamCloseDropsInFlight(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123456789abcdef"))

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 4})
	require.Equal(t, 4, m.PendingCount())

	s.Close()

	assert.Equal(t, 0, m.PendingCount())
	assert.Empty(t, m.Violations())

	_, err := s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestReadStreamAwaitBlocksUntilCompletion(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("0123"))

	s := NewReadStream(m, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 1})
	defer s.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.CompleteAll()
	}()

	chunk, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123", string(chunk))
	assert.Empty(t, m.Violations())
}
