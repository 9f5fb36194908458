// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
)

const (
	MinMTU = core.MinEthernetFrame
	MaxMTU = 9216

	MaxQueueCapacity = 4096

	CompletionExplicit = "explicit"
	CompletionInferred = "inferred"
)

// Config represents the top-level configuration.
// Maps to the `t1s:` root key in YAML.
type Config struct {
	Link      LinkConfig       `mapstructure:"link" yaml:"link"`
	Transport TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Source    SourceConfig     `mapstructure:"source" yaml:"source"`
	Queue     QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Stack     StackConfig      `mapstructure:"stack" yaml:"stack"`
	Inspect   InspectConfig    `mapstructure:"inspect" yaml:"inspect"`
	Capture   CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Mirror    MirrorConfig     `mapstructure:"mirror" yaml:"mirror"`
	Status    StatusConfig     `mapstructure:"status" yaml:"status"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log       log.LoggerConfig `mapstructure:"log" yaml:"log"`
}

// ─── Link ───

// LinkConfig describes the emulated MAC-PHY instance.
type LinkConfig struct {
	Instance string     `mapstructure:"instance" yaml:"instance"`
	MTU      int        `mapstructure:"mtu" yaml:"mtu"`
	PLCA     PLCAConfig `mapstructure:"plca" yaml:"plca"`
}

// PLCAConfig mirrors the PHY-level collision avoidance settings. They are
// reported at startup and in status lines; the emulated link has no
// shared medium to arbitrate.
type PLCAConfig struct {
	Enabled    bool  `mapstructure:"enabled" yaml:"enabled"`
	NodeID     uint8 `mapstructure:"node_id" yaml:"node_id"`
	NodeCount  uint8 `mapstructure:"node_count" yaml:"node_count"`
	BurstCount uint8 `mapstructure:"burst_count" yaml:"burst_count"`
	BurstTimer uint8 `mapstructure:"burst_timer" yaml:"burst_timer"`
}

// ─── Transport ───

// TransportConfig configures slicing and frame completion.
type TransportConfig struct {
	ChunkSize  int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	Completion string `mapstructure:"completion" yaml:"completion"` // explicit | inferred
}

// ─── Source ───

// SourceConfig selects the frame source plugin.
type SourceConfig struct {
	Type       string         `mapstructure:"type" yaml:"type"` // beacon | file | afpacket
	BufferSize int            `mapstructure:"buffer_size" yaml:"buffer_size"`
	Options    map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Queue ───

// QueueConfig configures the bounded frame queue.
type QueueConfig struct {
	Capacity    int           `mapstructure:"capacity" yaml:"capacity"`
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// ─── Stack ───

// StackConfig is the device profile of the local network stack.
type StackConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	Address     string   `mapstructure:"address" yaml:"address"` // CIDR or bare IPv4
	MAC         string   `mapstructure:"mac" yaml:"mac"`
	Promiscuous bool     `mapstructure:"promiscuous" yaml:"promiscuous"`
	Ports       []uint16 `mapstructure:"ports" yaml:"ports"`
	Forward     string   `mapstructure:"forward" yaml:"forward"`
	ForwardTTL  int      `mapstructure:"forward_ttl" yaml:"forward_ttl"` // 0 keeps the system default
	ForwardTOS  int      `mapstructure:"forward_tos" yaml:"forward_tos"`
	Buffers     int      `mapstructure:"buffers" yaml:"buffers"`
}

// Prefix returns the configured address. A bare IPv4 address gets a /24.
func (s StackConfig) Prefix() (netip.Prefix, error) {
	if s.Address == "" {
		return netip.Prefix{}, nil
	}
	if strings.Contains(s.Address, "/") {
		p, err := netip.ParsePrefix(s.Address)
		if err != nil || !p.Addr().Is4() {
			return netip.Prefix{}, fmt.Errorf("stack.address %q is not an IPv4 prefix", s.Address)
		}
		return p, nil
	}
	a, err := netip.ParseAddr(s.Address)
	if err != nil || !a.Is4() {
		return netip.Prefix{}, fmt.Errorf("stack.address %q is not an IPv4 address", s.Address)
	}
	return netip.PrefixFrom(a, 24), nil
}

// ─── Inspect / Capture ───

// InspectConfig configures the inspection consumer.
type InspectConfig struct {
	HexDump      bool          `mapstructure:"hex_dump" yaml:"hex_dump"`
	MaxDumpBytes int           `mapstructure:"max_dump_bytes" yaml:"max_dump_bytes"`
	LayerSummary bool          `mapstructure:"layer_summary" yaml:"layer_summary"`
	WarnWindow   time.Duration `mapstructure:"warn_window" yaml:"warn_window"`
}

// CaptureConfig configures the pcap capture file.
type CaptureConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"`
	ByteOrder string `mapstructure:"byte_order" yaml:"byte_order"` // little | big
	Snaplen   uint32 `mapstructure:"snaplen" yaml:"snaplen"`
}

// ─── Mirror ───

// MirrorConfig holds remote mirror sinks.
type MirrorConfig struct {
	Kafka KafkaMirrorConfig `mapstructure:"kafka" yaml:"kafka"`
}

// KafkaMirrorConfig configures the Kafka frame mirror.
type KafkaMirrorConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Async        bool          `mapstructure:"async" yaml:"async"`
}

// ─── Status / Metrics ───

// StatusConfig configures the periodic status line.
type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"` // 0 disables
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `t1s: ...`.
type configRoot struct {
	T1S Config `mapstructure:"t1s"`
}

// Load loads configuration from file. An empty path loads defaults only.
// The YAML file uses `t1s:` as root key; env vars use the T1S_ prefix
// (e.g., T1S_LOG_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `t1s.` key prefix maps to `T1S_` via the key replacer
	// (e.g., key "t1s.capture.enabled" → env "T1S_CAPTURE_ENABLED").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.T1S

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "t1s." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Link defaults
	v.SetDefault("t1s.link.instance", "t1s0")
	v.SetDefault("t1s.link.mtu", core.DefaultMTU)
	v.SetDefault("t1s.link.plca.enabled", false)
	v.SetDefault("t1s.link.plca.node_count", 2)
	v.SetDefault("t1s.link.plca.burst_count", 0)
	v.SetDefault("t1s.link.plca.burst_timer", 0x80)

	// Transport defaults
	v.SetDefault("t1s.transport.chunk_size", 64)
	v.SetDefault("t1s.transport.completion", CompletionExplicit)

	// Source defaults
	v.SetDefault("t1s.source.type", "beacon")
	v.SetDefault("t1s.source.buffer_size", 64)

	// Queue defaults
	v.SetDefault("t1s.queue.capacity", 10)
	v.SetDefault("t1s.queue.send_timeout", "100ms")

	// Stack defaults
	v.SetDefault("t1s.stack.enabled", true)
	v.SetDefault("t1s.stack.address", "192.168.1.30/24")
	v.SetDefault("t1s.stack.mac", "00:04:a3:34:50:56")
	v.SetDefault("t1s.stack.promiscuous", false)
	v.SetDefault("t1s.stack.ports", []uint16{1234})
	v.SetDefault("t1s.stack.buffers", 16)

	// Inspect and capture defaults
	v.SetDefault("t1s.inspect.hex_dump", true)
	v.SetDefault("t1s.inspect.max_dump_bytes", 256)
	v.SetDefault("t1s.inspect.layer_summary", false)
	v.SetDefault("t1s.inspect.warn_window", "10s")
	v.SetDefault("t1s.capture.enabled", false)
	v.SetDefault("t1s.capture.path", "capture.pcap")
	v.SetDefault("t1s.capture.byte_order", "little")
	v.SetDefault("t1s.capture.snaplen", 65535)

	// Mirror defaults
	v.SetDefault("t1s.mirror.kafka.enabled", false)
	v.SetDefault("t1s.mirror.kafka.topic", "t1s-frames")
	v.SetDefault("t1s.mirror.kafka.batch_size", 100)
	v.SetDefault("t1s.mirror.kafka.batch_timeout", "100ms")
	v.SetDefault("t1s.mirror.kafka.compression", "snappy")
	v.SetDefault("t1s.mirror.kafka.max_attempts", 3)

	// Status and metrics defaults
	v.SetDefault("t1s.status.interval", "10s")
	v.SetDefault("t1s.metrics.enabled", true)
	v.SetDefault("t1s.metrics.listen", ":9091")
	v.SetDefault("t1s.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("t1s.log.level", "info")
	v.SetDefault("t1s.log.pattern", log.DefaultPattern)
	v.SetDefault("t1s.log.time", log.DefaultTime)
	v.SetDefault("t1s.log.stdout", true)
}

// ValidateAndApplyDefaults validates configuration and fills zero values
// that have a runtime default.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}

	// ── Link ──
	if cfg.Link.Instance == "" {
		cfg.Link.Instance = "t1s0"
	}
	if cfg.Link.MTU < MinMTU || cfg.Link.MTU > MaxMTU {
		return invalid("link.mtu %d out of range [%d, %d]", cfg.Link.MTU, MinMTU, MaxMTU)
	}
	if p := cfg.Link.PLCA; p.Enabled {
		if p.NodeCount == 0 {
			return invalid("link.plca.node_count must be positive")
		}
		if p.NodeID >= p.NodeCount && p.NodeID != 0xFF {
			return invalid("link.plca.node_id %d must be below node_count %d", p.NodeID, p.NodeCount)
		}
	}

	// ── Transport ──
	if cfg.Transport.ChunkSize < 1 || cfg.Transport.ChunkSize > cfg.Link.MTU {
		return invalid("transport.chunk_size %d out of range [1, %d]", cfg.Transport.ChunkSize, cfg.Link.MTU)
	}
	switch cfg.Transport.Completion {
	case CompletionExplicit, CompletionInferred:
	default:
		return invalid("transport.completion: %s (must be explicit/inferred)", cfg.Transport.Completion)
	}

	// ── Source ──
	if cfg.Source.Type == "" {
		return invalid("source.type is required")
	}

	// ── Queue ──
	if cfg.Queue.Capacity < 1 || cfg.Queue.Capacity > MaxQueueCapacity {
		return invalid("queue.capacity %d out of range [1, %d]", cfg.Queue.Capacity, MaxQueueCapacity)
	}
	if cfg.Queue.SendTimeout < 0 {
		return invalid("queue.send_timeout must not be negative")
	}

	// ── Stack ──
	if cfg.Stack.Enabled {
		if _, err := cfg.Stack.Prefix(); err != nil {
			return invalid("%v", err)
		}
		if cfg.Stack.MAC != "" {
			if _, err := net.ParseMAC(cfg.Stack.MAC); err != nil {
				return invalid("stack.mac: %v", err)
			}
		}
		if cfg.Stack.Forward != "" {
			if _, err := net.ResolveUDPAddr("udp4", cfg.Stack.Forward); err != nil {
				return invalid("stack.forward: %v", err)
			}
		}
		if cfg.Stack.ForwardTTL < 0 || cfg.Stack.ForwardTTL > 255 {
			return invalid("stack.forward_ttl %d out of range [0, 255]", cfg.Stack.ForwardTTL)
		}
		if cfg.Stack.ForwardTOS < 0 || cfg.Stack.ForwardTOS > 255 {
			return invalid("stack.forward_tos %d out of range [0, 255]", cfg.Stack.ForwardTOS)
		}
		if cfg.Stack.Buffers <= 0 {
			cfg.Stack.Buffers = 16
		}
	}

	// ── Inspect / Capture ──
	if cfg.Inspect.MaxDumpBytes < 0 {
		return invalid("inspect.max_dump_bytes must not be negative")
	}
	switch cfg.Capture.ByteOrder {
	case "little", "le", "big", "be":
	default:
		return invalid("capture.byte_order: %s (must be little/big)", cfg.Capture.ByteOrder)
	}
	if cfg.Capture.Enabled && cfg.Capture.Path == "" {
		return invalid("capture.path is required when capture.enabled=true")
	}

	// ── Mirror ──
	if k := cfg.Mirror.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return invalid("mirror.kafka.brokers is required when mirror.kafka.enabled=true")
		}
		if k.Topic == "" {
			return invalid("mirror.kafka.topic is required when mirror.kafka.enabled=true")
		}
	}

	// ── Status / Metrics ──
	if cfg.Status.Interval < 0 {
		return invalid("status.interval must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
