package aio

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/quartzfs/objstream/pkg/engine/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectWriterRoundTrip(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 4, Jitter: time.Millisecond})
	defer eng.Close()

	ctx := context.Background()
	data := make([]byte, 200<<10)
	_, _ = rand.Read(data)

	w := NewObjectWriter(ctx, eng, "obj", WriteSinkConfig{Concurrency: 3})
	for off := 0; off < len(data); off += 16 << 10 {
		end := off + 16<<10
		if end > len(data) {
			end = len(data)
		}
		n, err := w.Write(data[off:end])
		require.NoError(t, err)
		require.Equal(t, end-off, n)
	}
	require.NoError(t, w.Close())

	got, ok := eng.Object("obj")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, got))
}

func TestWriteAllReadAllRoundTrip(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 4, Jitter: 2 * time.Millisecond})
	defer eng.Close()

	ctx := context.Background()
	data := make([]byte, 150<<10)
	_, _ = rand.Read(data)

	err := WriteAll(ctx, eng, "obj", data, 32<<10, WriteSinkConfig{Concurrency: 4})
	require.NoError(t, err)

	got, err := ReadAll(ctx, eng, "obj", ReadStreamConfig{ChunkSize: 32 << 10, Concurrency: 4})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestWriteAllEmpty(t *testing.T) {
	eng := memory.New(memory.Config{Workers: 2})
	defer eng.Close()

	require.NoError(t, WriteAll(context.Background(), eng, "obj", nil, 0, WriteSinkConfig{}))
}
