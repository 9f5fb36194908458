package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/t1sbridge/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t1sbridge.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
t1s:
  link:
    instance: lan8651-0
    mtu: 1500
    plca:
      enabled: true
      node_id: 1
      node_count: 4
  transport:
    chunk_size: 32
    completion: inferred
  source:
    type: file
    options:
      path: /tmp/in.pcap
      loop: true
  queue:
    capacity: 20
    send_timeout: 50ms
  stack:
    address: 192.168.1.10/24
    ports: [1234, 5683]
    forward: 127.0.0.1:5684
    forward_ttl: 2
  capture:
    enabled: true
    path: /tmp/out.pcap
    byte_order: big
  mirror:
    kafka:
      enabled: true
      brokers: [localhost:9092]
  log:
    level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lan8651-0", cfg.Link.Instance)
	assert.True(t, cfg.Link.PLCA.Enabled)
	assert.Equal(t, uint8(4), cfg.Link.PLCA.NodeCount)
	assert.Equal(t, 32, cfg.Transport.ChunkSize)
	assert.Equal(t, CompletionInferred, cfg.Transport.Completion)
	assert.Equal(t, "file", cfg.Source.Type)
	assert.Equal(t, "/tmp/in.pcap", cfg.Source.Options["path"])
	assert.Equal(t, 20, cfg.Queue.Capacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Queue.SendTimeout)
	assert.Equal(t, []uint16{1234, 5683}, cfg.Stack.Ports)
	assert.Equal(t, "127.0.0.1:5684", cfg.Stack.Forward)
	assert.Equal(t, 2, cfg.Stack.ForwardTTL)
	assert.Equal(t, "big", cfg.Capture.ByteOrder)
	assert.Equal(t, "t1s-frames", cfg.Mirror.Kafka.Topic)
	assert.Equal(t, "debug", cfg.Log.Level)

	prefix, err := cfg.Stack.Prefix()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10/24", prefix.String())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "t1s: {}\n"))
	require.NoError(t, err)

	assert.Equal(t, "t1s0", cfg.Link.Instance)
	assert.Equal(t, core.DefaultMTU, cfg.Link.MTU)
	assert.Equal(t, 64, cfg.Transport.ChunkSize)
	assert.Equal(t, CompletionExplicit, cfg.Transport.Completion)
	assert.Equal(t, "beacon", cfg.Source.Type)
	assert.Equal(t, 10, cfg.Queue.Capacity)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.SendTimeout)
	assert.True(t, cfg.Stack.Enabled)
	assert.Equal(t, 16, cfg.Stack.Buffers)
	assert.True(t, cfg.Inspect.HexDump)
	assert.Equal(t, 256, cfg.Inspect.MaxDumpBytes)
	assert.Equal(t, 10*time.Second, cfg.Inspect.WarnWindow)
	assert.False(t, cfg.Capture.Enabled)
	assert.Equal(t, "little", cfg.Capture.ByteOrder)
	assert.Equal(t, 10*time.Second, cfg.Status.Interval)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "beacon", cfg.Source.Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("T1S_CAPTURE_ENABLED", "true")
	t.Setenv("T1S_QUEUE_CAPACITY", "42")
	t.Setenv("T1S_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "t1s: {}\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, 42, cfg.Queue.Capacity)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"mtu too small", "t1s: {link: {mtu: 59}}"},
		{"mtu too large", "t1s: {link: {mtu: 9217}}"},
		{"chunk larger than mtu", "t1s: {link: {mtu: 100}, transport: {chunk_size: 101}}"},
		{"zero chunk", "t1s: {transport: {chunk_size: 0}}"},
		{"bad completion", "t1s: {transport: {completion: eventually}}"},
		{"queue too small", "t1s: {queue: {capacity: 0}}"},
		{"queue too large", "t1s: {queue: {capacity: 4097}}"},
		{"bad byte order", "t1s: {capture: {byte_order: middle}}"},
		{"ipv6 stack address", "t1s: {stack: {address: 'fe80::1'}}"},
		{"bad mac", "t1s: {stack: {mac: 'zz'}}"},
		{"forward ttl too large", "t1s: {stack: {forward_ttl: 256}}"},
		{"kafka without brokers", "t1s: {mirror: {kafka: {enabled: true}}}"},
		{"plca node id", "t1s: {link: {plca: {enabled: true, node_id: 3, node_count: 2}}}"},
		{"bad log level", "t1s: {log: {level: loud}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content+"\n"))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestStackPrefix(t *testing.T) {
	p, err := StackConfig{Address: "10.0.0.7"}.Prefix()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7/24", p.String())

	p, err = StackConfig{}.Prefix()
	require.NoError(t, err)
	assert.False(t, p.IsValid())
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "t1sbridge.yml"))
	require.NoError(t, err)
	assert.Equal(t, "lan8651-0", cfg.Link.Instance)
	assert.Equal(t, "beacon", cfg.Source.Type)
	assert.Equal(t, 10*time.Second, cfg.Status.Interval)
}
