package aio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quartzfs/objstream/pkg/engine"
	"github.com/quartzfs/objstream/pkg/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReadCompletion(t *testing.T, m *enginetest.Mock, object string, buf []byte, offset uint64) *Completion {
	t.Helper()
	c, err := NewCompletion(m, "read", object, func(tok engine.Token) int {
		return m.Read(object, tok, buf, offset)
	})
	require.NoError(t, err)
	return c
}

func TestCompletionAwait(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("hello world"))

	buf := make([]byte, 5)
	c := newReadCompletion(t, m, "obj", buf, 6)

	// Completion arrives from a foreign goroutine while Await sleeps.
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.CompleteNext()
	}()

	n, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf[:n]))
	assert.True(t, c.Resolved())

	// Await after resolution keeps returning the same result.
	n, err = c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	c.Close()
	assert.Empty(t, m.Violations())
}

func TestCompletionTryAwait(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("data"))

	buf := make([]byte, 4)
	c := newReadCompletion(t, m, "obj", buf, 0)

	_, done, err := c.TryAwait()
	require.NoError(t, err)
	assert.False(t, done, "operation should still be pending")

	m.CompleteNext()

	n, done, err := c.TryAwait()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 4, n)

	c.Close()
	assert.Empty(t, m.Violations())
}

func TestCompletionDispatchError(t *testing.T) {
	m := enginetest.New()
	m.DispatchStatus = func(r enginetest.Record) int {
		return -engine.EIO
	}

	buf := make([]byte, 4)
	_, err := NewCompletion(m, "read", "obj", func(tok engine.Token) int {
		return m.Read("obj", tok, buf, 0)
	})
	require.Error(t, err)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "read", de.Op)
	assert.Equal(t, engine.EIO, de.Errno)

	errno, ok := Errno(err)
	assert.True(t, ok)
	assert.Equal(t, engine.EIO, errno)

	assert.Equal(t, 0, m.PendingCount())
	assert.Empty(t, m.Violations())
}

func TestCompletionOperationError(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("data"))
	m.ResultFor = func(r enginetest.Record) (int, bool) {
		return -engine.EIO, true
	}

	buf := make([]byte, 4)
	c := newReadCompletion(t, m, "obj", buf, 0)

	go m.CompleteAll()

	_, err := c.Await(context.Background())
	require.Error(t, err)

	var oe *OperationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, engine.EIO, oe.Errno)

	c.Close()
	assert.Empty(t, m.Violations())
}

func TestCompletionAwaitContextCancel(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("data"))

	buf := make([]byte, 4)
	c := newReadCompletion(t, m, "obj", buf, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Await(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Resolved(), "context error must not resolve the completion")

	// The operation is still live; a fresh Await picks it up.
	go m.CompleteAll()
	n, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	c.Close()
	assert.Empty(t, m.Violations())
}

func TestCompletionCloseCancelsInFlight(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("data"))

	buf := make([]byte, 4)
	c := newReadCompletion(t, m, "obj", buf, 0)

	// Never completed; Close must cancel, drain and release.
	c.Close()

	assert.Equal(t, 0, m.PendingCount())
	assert.Empty(t, m.Violations())

	// Idempotent.
	c.Close()
}

func TestCompletionCloseAfterResolve(t *testing.T) {
	m := enginetest.New()
	m.SetObject("obj", []byte("data"))

	buf := make([]byte, 4)
	c := newReadCompletion(t, m, "obj", buf, 0)

	m.CompleteNext()
	_, done, err := c.TryAwait()
	require.NoError(t, err)
	require.True(t, done)

	c.Close()
	assert.Empty(t, m.Violations())
}

// disagreeingEngine returns an out-of-contract status from Cancel.
type disagreeingEngine struct {
	*enginetest.Mock
}

func (e *disagreeingEngine) Cancel(t engine.Token) int { return -engine.EINVAL }

func TestCompletionCloseCancelDisagreementPanics(t *testing.T) {
	m := &disagreeingEngine{Mock: enginetest.New()}
	m.SetObject("obj", []byte("data"))

	buf := make([]byte, 4)
	c, err := NewCompletion(m, "read", "obj", func(tok engine.Token) int {
		return m.Read("obj", tok, buf, 0)
	})
	require.NoError(t, err)

	assert.Panics(t, func() { c.Close() })
}

func TestErrnoHelper(t *testing.T) {
	_, ok := Errno(errors.New("plain"))
	assert.False(t, ok)

	errno, ok := Errno(&OperationError{Op: "write", Object: "obj", Errno: engine.ENOSPC})
	assert.True(t, ok)
	assert.Equal(t, engine.ENOSPC, errno)

	errno, ok = Errno(&DispatchError{Op: "read", Object: "obj", Errno: engine.ENOENT})
	assert.True(t, ok)
	assert.Equal(t, engine.ENOENT, errno)
}
