package memory

import (
	"context"
	"testing"
	"time"

	"github.com/quartzfs/objstream/pkg/aio"
	"github.com/quartzfs/objstream/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newToken allocates a token whose callback signals done, so tests can
// block until the operation completes.
func newToken(t *testing.T, e *Engine) (engine.Token, chan struct{}) {
	t.Helper()
	done := make(chan struct{}, 1)
	tok, err := e.CreateCompletion(func(uint64) { done <- struct{}{} }, 0)
	require.NoError(t, err)
	return tok, done
}

func TestMemoryEngineReadWrite(t *testing.T) {
	e := New(Config{Workers: 2})
	defer e.Close()

	wtok, wdone := newToken(t, e)
	require.Equal(t, 0, e.Write("obj", wtok, []byte("hello"), 0))
	<-wdone

	e.WaitDrained(wtok)
	assert.Equal(t, 5, e.ResultCode(wtok))
	e.Release(wtok)

	buf := make([]byte, 5)
	rtok, rdone := newToken(t, e)
	require.Equal(t, 0, e.Read("obj", rtok, buf, 0))
	<-rdone

	e.WaitDrained(rtok)
	assert.Equal(t, 5, e.ResultCode(rtok))
	assert.Equal(t, "hello", string(buf))
	e.Release(rtok)
}

func TestMemoryEngineSparseWriteGrowsObject(t *testing.T) {
	e := New(Config{Workers: 1})
	defer e.Close()

	tok, done := newToken(t, e)
	require.Equal(t, 0, e.Write("obj", tok, []byte("xy"), 4))
	<-done
	e.WaitDrained(tok)
	e.Release(tok)

	data, ok := e.Object("obj")
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0, 'x', 'y'}, data)
}

func TestMemoryEngineReadEdges(t *testing.T) {
	e := New(Config{Workers: 1})
	defer e.Close()
	e.SetObject("obj", []byte("abcdef"))

	t.Run("MissingObject", func(t *testing.T) {
		tok, done := newToken(t, e)
		require.Equal(t, 0, e.Read("nope", tok, make([]byte, 4), 0))
		<-done
		e.WaitDrained(tok)
		assert.Equal(t, -engine.ENOENT, e.ResultCode(tok))
		e.Release(tok)
	})

	t.Run("OffsetPastEnd", func(t *testing.T) {
		tok, done := newToken(t, e)
		require.Equal(t, 0, e.Read("obj", tok, make([]byte, 4), 100))
		<-done
		e.WaitDrained(tok)
		assert.Equal(t, 0, e.ResultCode(tok), "read past end is a clean EOF")
		e.Release(tok)
	})

	t.Run("ShortTail", func(t *testing.T) {
		buf := make([]byte, 4)
		tok, done := newToken(t, e)
		require.Equal(t, 0, e.Read("obj", tok, buf, 4))
		<-done
		e.WaitDrained(tok)
		assert.Equal(t, 2, e.ResultCode(tok))
		assert.Equal(t, "ef", string(buf[:2]))
		e.Release(tok)
	})
}

func TestMemoryEngineCancel(t *testing.T) {
	// Large latency keeps the op queued long enough to cancel it.
	e := New(Config{Workers: 1, Latency: 50 * time.Millisecond})
	defer e.Close()
	e.SetObject("obj", []byte("abcdef"))

	tok, done := newToken(t, e)
	require.Equal(t, 0, e.Read("obj", tok, make([]byte, 4), 0))

	require.Equal(t, 0, e.Cancel(tok))
	<-done

	e.WaitDrained(tok)
	assert.Equal(t, -engine.ECANCELED, e.ResultCode(tok))
	assert.Equal(t, -engine.ENOENT, e.Cancel(tok), "second cancel loses")
	e.Release(tok)
}

// A completion torn down while its op still sits in the dispatch queue
// releases the token before the worker ever sees the op. The worker must
// skip the orphaned op when it dequeues it; with a single slow worker the
// interleave is deterministic.
func TestMemoryEngineCloseWhileQueued(t *testing.T) {
	e := New(Config{Workers: 1, Latency: 30 * time.Millisecond})
	defer e.Close()
	e.SetObject("obj", []byte("abcdef"))

	first, err := aio.NewCompletion(e, "read", "obj", func(tok engine.Token) int {
		return e.Read("obj", tok, make([]byte, 6), 0)
	})
	require.NoError(t, err)

	queued, err := aio.NewCompletion(e, "read", "obj", func(tok engine.Token) int {
		return e.Read("obj", tok, make([]byte, 6), 0)
	})
	require.NoError(t, err)

	// Cancel, drain and release the queued read while the worker is still
	// busy with the first one.
	queued.Close()

	n, err := first.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	first.Close()

	// A fresh read completing proves the worker survived dequeuing the
	// released op.
	buf := make([]byte, 6)
	last, err := aio.NewCompletion(e, "read", "obj", func(tok engine.Token) int {
		return e.Read("obj", tok, buf, 0)
	})
	require.NoError(t, err)
	n, err = last.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(buf[:n]))
	last.Close()
}

func TestMemoryEngineClose(t *testing.T) {
	e := New(Config{Workers: 2})
	e.SetObject("obj", []byte("abcdef"))

	tok, done := newToken(t, e)
	require.Equal(t, 0, e.Read("obj", tok, make([]byte, 6), 0))
	<-done
	e.WaitDrained(tok)
	e.Release(tok)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "close is idempotent")

	_, err := e.CreateCompletion(func(uint64) {}, 0)
	assert.ErrorIs(t, err, engine.ErrEngineClosed)
}

func TestMemoryEngineJitteredConcurrency(t *testing.T) {
	e := New(Config{Workers: 4, Jitter: 2 * time.Millisecond})
	defer e.Close()

	const n = 16
	dones := make([]chan struct{}, n)
	toks := make([]engine.Token, n)
	for i := 0; i < n; i++ {
		toks[i], dones[i] = newToken(t, e)
		require.Equal(t, 0, e.Write("obj", toks[i], []byte{byte('a' + i)}, uint64(i)))
	}
	for i := 0; i < n; i++ {
		<-dones[i]
		e.WaitDrained(toks[i])
		e.Release(toks[i])
	}

	data, ok := e.Object("obj")
	require.True(t, ok)
	assert.Equal(t, "abcdefghijklmnop", string(data))
}
