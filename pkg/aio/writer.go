package aio

import (
	"context"

	"github.com/quartzfs/objstream/pkg/engine"
)

// ObjectWriter adapts a WriteSink to io.WriteCloser. Each Write call becomes
// one sink item (one engine write); callers that produce small writes should
// wrap it in a bufio.Writer sized to the intended chunk size.
type ObjectWriter struct {
	ctx  context.Context
	sink *WriteSink
}

// NewObjectWriter opens object for sequential writing starting at offset
// zero. ctx bounds every Write and the final Close drain.
func NewObjectWriter(ctx context.Context, eng engine.Engine, object string, cfg WriteSinkConfig) *ObjectWriter {
	return &ObjectWriter{
		ctx:  ctx,
		sink: NewWriteSink(eng, object, cfg),
	}
}

// Write implements io.Writer. The slice may be reused as soon as Write
// returns; durability is only established by Close.
func (w *ObjectWriter) Write(p []byte) (int, error) {
	if err := w.sink.Push(w.ctx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close drains every outstanding write and closes the sink, returning the
// first write error if any.
func (w *ObjectWriter) Close() error {
	return w.sink.Close(w.ctx)
}

// WriteAll writes data to object in chunkSize pieces through a WriteSink
// and drains it. chunkSize <= 0 uses DefaultChunkSize.
func WriteAll(ctx context.Context, eng engine.Engine, object string, data []byte, chunkSize int, cfg WriteSinkConfig) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	s := NewWriteSink(eng, object, cfg)
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := s.Push(ctx, data[off:end]); err != nil {
			s.Abort()
			return err
		}
	}
	return s.Close(ctx)
}
