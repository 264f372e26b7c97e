package aio

import (
	"context"
	"io"

	"github.com/quartzfs/objstream/pkg/engine"
)

// ObjectReader adapts a ReadStream to io.ReadCloser. Reads are served from
// the stream's in-order chunks; the chunk tail not consumed by one Read call
// is carried over to the next.
type ObjectReader struct {
	ctx    context.Context
	stream *ReadStream
	rest   []byte
	err    error // sticky terminal error (including io.EOF)
}

// NewObjectReader opens object for streaming reads. ctx bounds every Read
// call; cancelling it does not tear down the in-flight window, Close does.
func NewObjectReader(ctx context.Context, eng engine.Engine, object string, cfg ReadStreamConfig) *ObjectReader {
	return &ObjectReader{
		ctx:    ctx,
		stream: NewReadStream(eng, object, cfg),
	}
}

// Read implements io.Reader.
func (r *ObjectReader) Read(p []byte) (int, error) {
	if len(r.rest) > 0 {
		n := copy(p, r.rest)
		r.rest = r.rest[n:]
		return n, nil
	}
	if r.err != nil {
		return 0, r.err
	}

	chunk, err := r.stream.Next(r.ctx)
	if err != nil {
		if err != r.ctx.Err() {
			// Stream errors (and EOF) are terminal; context errors are
			// retryable, so they stay non-sticky.
			r.err = err
		}
		return 0, err
	}

	n := copy(p, chunk)
	r.rest = chunk[n:]
	return n, nil
}

// Close drops the underlying stream's in-flight reads.
func (r *ObjectReader) Close() error {
	r.stream.Close()
	if r.err == nil {
		r.err = io.EOF
	}
	return nil
}

// ReadAll reads the entire object through a ReadStream and returns its
// contents.
func ReadAll(ctx context.Context, eng engine.Engine, object string, cfg ReadStreamConfig) ([]byte, error) {
	s := NewReadStream(eng, object, cfg)
	defer s.Close()

	var out []byte
	for {
		chunk, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}
