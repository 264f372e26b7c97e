package aio

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/quartzfs/objstream/pkg/engine/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectReaderSmallBuffers(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 2})
	defer eng.Close()

	eng.SetObject("obj", []byte("hello, object stream"))

	r := NewObjectReader(context.Background(), eng, "obj", ReadStreamConfig{ChunkSize: 8, Concurrency: 2})
	defer r.Close()

	// Reads smaller than the chunk size exercise the carry-over path.
	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "hello, object stream", string(out))
}

func TestObjectReaderWithIoCopy(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 4, Latency: time.Millisecond, Jitter: time.Millisecond})
	defer eng.Close()

	data := make([]byte, 300<<10)
	_, _ = rand.Read(data)
	eng.SetObject("obj", data)

	r := NewObjectReader(context.Background(), eng, "obj", ReadStreamConfig{ChunkSize: 64 << 10, Concurrency: 4})
	defer r.Close()

	var out bytes.Buffer
	n, err := io.Copy(&out, r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.True(t, bytes.Equal(data, out.Bytes()))
}

func TestReadAll(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 4, Jitter: time.Millisecond})
	defer eng.Close()

	data := make([]byte, 100<<10)
	_, _ = rand.Read(data)
	eng.SetObject("obj", data)

	got, err := ReadAll(context.Background(), eng, "obj", ReadStreamConfig{ChunkSize: 16 << 10, Concurrency: 3})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestObjectReaderCloseThenRead(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 2})
	defer eng.Close()

	eng.SetObject("obj", []byte("data"))

	r := NewObjectReader(context.Background(), eng, "obj", ReadStreamConfig{ChunkSize: 4, Concurrency: 1})
	require.NoError(t, r.Close())

	_, err := r.Read(make([]byte, 4))
	assert.Equal(t, io.EOF, err)
}
