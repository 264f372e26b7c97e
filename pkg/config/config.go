// Package config loads and validates objstream configuration from YAML
// files and builds the configured engine.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quartzfs/objstream/internal/bytesize"
	"github.com/quartzfs/objstream/internal/logger"
	"github.com/quartzfs/objstream/pkg/aio"
	"github.com/quartzfs/objstream/pkg/engine"
	badgerengine "github.com/quartzfs/objstream/pkg/engine/badger"
	memoryengine "github.com/quartzfs/objstream/pkg/engine/memory"
	s3engine "github.com/quartzfs/objstream/pkg/engine/s3"
	"github.com/quartzfs/objstream/pkg/metrics"
	"gopkg.in/yaml.v3"
)

// Config represents the objstream configuration.
//
// Configuration sources (in order of precedence):
//  1. Configuration file (YAML)
//  2. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `yaml:"logging"`

	// Metrics controls Prometheus instrumentation
	Metrics MetricsConfig `yaml:"metrics"`

	// Engine selects and configures the storage engine
	Engine EngineConfig `yaml:"engine"`

	// Stream configures read streams and write sinks built from this config
	Stream StreamConfig `yaml:"stream"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `yaml:"level"`

	// Format is the output format: text or json
	Format string `yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `yaml:"output"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	// Enabled turns metric collection on
	Enabled bool `yaml:"enabled"`
}

// EngineConfig selects and configures the storage engine.
type EngineConfig struct {
	// Type is the engine kind: memory, badger, or s3
	Type string `yaml:"type"`

	// Workers is the engine worker pool size (0 uses the engine default)
	Workers int `yaml:"workers"`

	Memory MemoryConfig `yaml:"memory"`
	Badger BadgerConfig `yaml:"badger"`
	S3     S3Config     `yaml:"s3"`
}

// MemoryConfig configures the in-memory engine.
type MemoryConfig struct {
	// Latency is an artificial delay applied to every operation
	Latency time.Duration `yaml:"latency"`

	// Jitter adds a random delay in [0, Jitter) on top of Latency
	Jitter time.Duration `yaml:"jitter"`
}

// BadgerConfig configures the BadgerDB engine.
type BadgerConfig struct {
	// Dir is the database directory (required unless InMemory)
	Dir string `yaml:"dir"`

	// InMemory runs BadgerDB without disk persistence
	InMemory bool `yaml:"in_memory"`
}

// S3Config configures the S3 engine.
type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	KeyPrefix      string `yaml:"key_prefix"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// StreamConfig configures streams and sinks built from this config.
type StreamConfig struct {
	// ChunkSize is the read chunk size, e.g. "4Mi" (default 4Mi)
	ChunkSize bytesize.ByteSize `yaml:"chunk_size"`

	// ReadConcurrency is the read window size (default 2)
	ReadConcurrency int `yaml:"read_concurrency"`

	// WriteConcurrency is the write window size (default 2)
	WriteConcurrency int `yaml:"write_concurrency"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Engine: EngineConfig{
			Type: "memory",
		},
		Stream: StreamConfig{
			ChunkSize:        bytesize.ByteSize(aio.DefaultChunkSize),
			ReadConcurrency:  aio.DefaultReadConcurrency,
			WriteConcurrency: aio.DefaultWriteConcurrency,
		},
	}
}

// Load reads a YAML configuration file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Engine.Type {
	case "memory":
	case "badger":
		if c.Engine.Badger.Dir == "" && !c.Engine.Badger.InMemory {
			return fmt.Errorf("engine.badger.dir is required for on-disk mode")
		}
	case "s3":
		if c.Engine.S3.Bucket == "" {
			return fmt.Errorf("engine.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unknown engine type %q (expected memory, badger or s3)", c.Engine.Type)
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if c.Stream.ReadConcurrency < 0 || c.Stream.WriteConcurrency < 0 {
		return fmt.Errorf("stream concurrency must not be negative")
	}
	return nil
}

// Apply initializes process-wide facilities (logging, metrics) from the
// configuration.
func (c *Config) Apply() error {
	if err := logger.Init(logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}); err != nil {
		return err
	}
	if c.Metrics.Enabled {
		metrics.InitRegistry()
	}
	return nil
}

// Build constructs the configured engine.
func (c *Config) Build(ctx context.Context) (engine.Engine, error) {
	switch c.Engine.Type {
	case "memory":
		return memoryengine.New(memoryengine.Config{
			Workers: c.Engine.Workers,
			Latency: c.Engine.Memory.Latency,
			Jitter:  c.Engine.Memory.Jitter,
		}), nil
	case "badger":
		return badgerengine.New(badgerengine.Config{
			Dir:      c.Engine.Badger.Dir,
			InMemory: c.Engine.Badger.InMemory,
			Workers:  c.Engine.Workers,
		})
	case "s3":
		return s3engine.NewFromConfig(ctx, s3engine.Config{
			Bucket:         c.Engine.S3.Bucket,
			Region:         c.Engine.S3.Region,
			Endpoint:       c.Engine.S3.Endpoint,
			KeyPrefix:      c.Engine.S3.KeyPrefix,
			ForcePathStyle: c.Engine.S3.ForcePathStyle,
			Workers:        c.Engine.Workers,
		})
	default:
		return nil, fmt.Errorf("unknown engine type %q", c.Engine.Type)
	}
}

// ReadStreamConfig derives a read stream configuration.
func (c *Config) ReadStreamConfig() aio.ReadStreamConfig {
	return aio.ReadStreamConfig{
		ChunkSize:   c.Stream.ChunkSize.Int(),
		Concurrency: c.Stream.ReadConcurrency,
		Metrics:     metrics.NewAIOMetrics(),
	}
}

// WriteSinkConfig derives a write sink configuration.
func (c *Config) WriteSinkConfig() aio.WriteSinkConfig {
	return aio.WriteSinkConfig{
		Concurrency: c.Stream.WriteConcurrency,
		Metrics:     metrics.NewAIOMetrics(),
	}
}
