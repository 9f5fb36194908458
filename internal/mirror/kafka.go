// Package mirror publishes reassembled frames to Kafka for remote capture.
package mirror

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// Config configures the Kafka mirror.
type Config struct {
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none|gzip|snappy|lz4|zstd
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Async        bool          `mapstructure:"async" yaml:"async"`
}

// messageWriter is the part of kafka.Writer the mirror uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stats is a snapshot of mirror counters.
type Stats struct {
	Published uint64
	Errors    uint64
}

// KafkaMirror publishes each frame as one message. The key is the source
// MAC so frames of one station stay in one partition.
type KafkaMirror struct {
	cfg    Config
	writer messageWriter
	logger log.Logger

	published atomic.Uint64
	errors    atomic.Uint64
}

// NewKafkaMirror validates cfg and creates the Kafka writer.
func NewKafkaMirror(cfg Config, logger log.Logger) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka mirror brokers is required: %w", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka mirror topic is required: %w", core.ErrConfigInvalid)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.Compression == "" {
		cfg.Compression = defaultCompression
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        cfg.Async,
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	writerConfig.CompressionCodec = codec

	m := newMirror(cfg, nil, logger)
	w := kafka.NewWriter(writerConfig)
	if cfg.Async {
		// async writes report failures only through Completion
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				m.errors.Add(uint64(len(messages)))
				metrics.MirrorErrorsTotal.Add(float64(len(messages)))
				m.logger.WithError(err).Warnf("kafka mirror dropped %d frames", len(messages))
			}
		}
	}
	m.writer = w

	m.logger.Infof("kafka mirror to %v topic %s (compression %s, async %t)",
		cfg.Brokers, cfg.Topic, cfg.Compression, cfg.Async)
	return m, nil
}

func newMirror(cfg Config, w messageWriter, logger log.Logger) *KafkaMirror {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &KafkaMirror{
		cfg:    cfg,
		writer: w,
		logger: logger.WithField("module", "mirror"),
	}
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	case "zstd":
		return compress.Zstd.Codec(), nil
	default:
		return nil, fmt.Errorf("invalid compression type %q: %w", name, core.ErrConfigInvalid)
	}
}

// Publish implements inspect.Publisher.
func (m *KafkaMirror) Publish(ctx context.Context, f core.Frame) error {
	msg := kafka.Message{
		Key:   frameKey(f.Data),
		Value: f.Data,
		Time:  f.Timestamp,
		Headers: []kafka.Header{
			{Key: "instance", Value: []byte(f.Instance)},
			{Key: "length", Value: []byte(strconv.Itoa(f.Len()))},
		},
	}

	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		m.errors.Add(1)
		return fmt.Errorf("publish frame: %w", err)
	}
	m.published.Add(1)
	return nil
}

// Close flushes pending messages.
func (m *KafkaMirror) Close() error {
	err := m.writer.Close()
	m.logger.Infof("kafka mirror stopped, %d published, %d errors", m.published.Load(), m.errors.Load())
	return err
}

// Stats returns a snapshot of the counters.
func (m *KafkaMirror) Stats() Stats {
	return Stats{Published: m.published.Load(), Errors: m.errors.Load()}
}

func frameKey(data []byte) []byte {
	if len(data) < 12 {
		return nil
	}
	return []byte(net.HardwareAddr(data[6:12]).String())
}
