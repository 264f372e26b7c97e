package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// Asynchronous I/O
	KeyOp     = "op"     // operation kind: read, write
	KeyObject = "object" // target object name
	KeyToken  = "token"  // completion token
	KeyStream = "stream" // read stream identifier
	KeySink   = "sink"   // write sink identifier
	KeyOffset = "offset" // byte offset within the object
	KeyBytes  = "bytes"  // byte count moved

	// Engine
	KeyEngine      = "engine"      // engine kind: memory, badger, s3
	KeyWorkers     = "workers"     // worker pool size
	KeyConcurrency = "concurrency" // window size for streams/sinks
	KeyChunkSize   = "chunk_size"  // chunk size in bytes

	// Cloud storage
	KeyBucket = "bucket" // S3 bucket name
	KeyKey    = "key"    // object key in cloud storage
	KeyRegion = "region" // cloud region

	// Operation metadata
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // numeric errno-style code
)

// Field constructors for type safety.

// Op returns a slog.Attr for the operation kind.
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Object returns a slog.Attr for the target object name.
func Object(name string) slog.Attr {
	return slog.String(KeyObject, name)
}

// Token returns a slog.Attr for a completion token.
func Token(t uint64) slog.Attr {
	return slog.Uint64(KeyToken, t)
}

// Stream returns a slog.Attr for a read stream identifier.
func Stream(id string) slog.Attr {
	return slog.String(KeyStream, id)
}

// Sink returns a slog.Attr for a write sink identifier.
func Sink(id string) slog.Attr {
	return slog.String(KeySink, id)
}

// Offset returns a slog.Attr for a byte offset.
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}

// EngineKind returns a slog.Attr for the engine kind.
func EngineKind(kind string) slog.Attr {
	return slog.String(KeyEngine, kind)
}

// Workers returns a slog.Attr for a worker pool size.
func Workers(n int) slog.Attr {
	return slog.Int(KeyWorkers, n)
}

// Concurrency returns a slog.Attr for a window size.
func Concurrency(n int) slog.Attr {
	return slog.Int(KeyConcurrency, n)
}

// ChunkSize returns a slog.Attr for a chunk size.
func ChunkSize(n int) slog.Attr {
	return slog.Int(KeyChunkSize, n)
}

// Bucket returns a slog.Attr for a cloud bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key in cloud storage.
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Region returns a slog.Attr for a cloud region.
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric errno-style code.
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}
