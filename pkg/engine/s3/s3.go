// Package s3 implements an asynchronous engine backed by an S3 (or
// S3-compatible) bucket. Each object maps to one S3 key; reads use ranged
// GetObject requests, writes are read-modify-write PutObject calls
// serialized per object.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/engine"
)

// DefaultWorkers is the worker pool size used when Config.Workers is zero.
const DefaultWorkers = 4

const opQueueDepth = 128

// Config holds configuration for the S3 engine.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services such as MinIO or Localstack).
	Endpoint string

	// KeyPrefix is prepended to all object keys (e.g., "objstream/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool

	// Workers is the number of goroutines performing operations
	// (default 4).
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

// Engine is an S3-backed engine.Engine implementation.
type Engine struct {
	table     *engine.Table
	client    *awss3.Client
	bucket    string
	keyPrefix string

	// Engine operations carry no context of their own; ctx bounds every
	// S3 request and is the one passed to New.
	ctx context.Context

	mu     sync.Mutex
	closed bool

	// objLocks serializes read-modify-write cycles per object. Without it
	// two concurrent writes to one object could each read the old value
	// and clobber the other's range.
	objLocks   map[string]*sync.Mutex
	objLocksMu sync.Mutex

	ops chan op
	wg  sync.WaitGroup

	// dispatching counts in-progress queue sends so Close can wait for
	// them before closing the channel.
	dispatching sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// New creates an S3 engine with an existing client.
func New(ctx context.Context, client *awss3.Client, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	e := &Engine{
		table:     engine.NewTable(),
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		ctx:       ctx,
		objLocks:  make(map[string]*sync.Mutex),
		ops:       make(chan op, opQueueDepth),
	}
	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}
	logger.Debug("s3 engine started",
		logger.KeyEngine, "s3", logger.KeyBucket, cfg.Bucket,
		logger.KeyWorkers, cfg.Workers)
	return e
}

// NewFromConfig creates an S3 engine by building an S3 client from config.
// This is the preferred constructor when you don't have an existing client.
func NewFromConfig(ctx context.Context, cfg Config) (*Engine, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)
	return New(ctx, client, cfg), nil
}

func (e *Engine) fullKey(object string) string {
	return e.keyPrefix + object
}

func (e *Engine) objLock(object string) *sync.Mutex {
	e.objLocksMu.Lock()
	defer e.objLocksMu.Unlock()
	l, ok := e.objLocks[object]
	if !ok {
		l = &sync.Mutex{}
		e.objLocks[object] = l
	}
	return l
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
	if len(o.buf) == 0 {
		return 0
	}

	key := e.fullKey(o.object)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", o.offset, o.offset+uint64(len(o.buf))-1)

	resp, err := e.client.GetObject(e.ctx, &awss3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		// A range past the end of the object is a clean EOF, not a fault.
		if isInvalidRangeError(err) {
			return 0
		}
		if isNotFoundError(err) {
			return -engine.ENOENT
		}
		logger.Error("s3 read failed",
			logger.KeyKey, key, logger.KeyOffset, o.offset, logger.KeyError, err)
		return -engine.EIO
	}
	defer resp.Body.Close()

	n, err := io.ReadFull(resp.Body, o.buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		logger.Error("s3 read body failed",
			logger.KeyKey, key, logger.KeyOffset, o.offset, logger.KeyError, err)
		return -engine.EIO
	}
	return n
}

func (e *Engine) performWrite(o op) int {
	l := e.objLock(o.object)
	l.Lock()
	defer l.Unlock()

	key := e.fullKey(o.object)

	var current []byte
	resp, err := e.client.GetObject(e.ctx, &awss3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		current, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			logger.Error("s3 write read-back failed",
				logger.KeyKey, key, logger.KeyError, err)
			return -engine.EIO
		}
	case isNotFoundError(err):
		// New object.
	default:
		logger.Error("s3 write read-back failed",
			logger.KeyKey, key, logger.KeyError, err)
		return -engine.EIO
	}

	end := o.offset + uint64(len(o.data))
	if uint64(len(current)) < end {
		grown := make([]byte, end)
		copy(grown, current)
		current = grown
	}
	copy(current[o.offset:], o.data)

	_, err = e.client.PutObject(e.ctx, &awss3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(current),
	})
	if err != nil {
		logger.Error("s3 write failed",
			logger.KeyKey, key, logger.KeyOffset, o.offset, logger.KeyError, err)
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

// Close drains the worker pool. Queued operations still run so their
// callbacks fire; new dispatches fail with -ESHUTDOWN.
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
	logger.Debug("s3 engine closed", logger.KeyEngine, "s3")
	return nil
}

// isNotFoundError checks if an error indicates a missing object.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

// isInvalidRangeError checks if an error indicates a range request beyond
// the end of the object.
func isInvalidRangeError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "InvalidRange") ||
		strings.Contains(errStr, "416")
}
