package beacon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/core/decoder"
)

func TestBuildDecodes(t *testing.T) {
	s := New().(*Source)
	require.NoError(t, s.Init(map[string]any{"node_id": 3}))

	data, err := s.Build()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(data), core.MinEthernetFrame)

	dg, err := decoder.DecodeUDP(data)
	require.NoError(t, err)
	assert.Equal(t, "Hello, here is node number: 3!", string(dg.Payload))
	assert.Equal(t, uint16(defaultPort), dg.UDP.DstPort)
	assert.Equal(t, "192.168.1.255", dg.IP.DstIP.String())
	assert.Equal(t, [6]byte{0x00, 0x04, 0xa3, 0x34, 0x50, 0x56}, dg.Ethernet.SrcMAC)
}

func TestInitRejectsBadOptions(t *testing.T) {
	cases := map[string]map[string]any{
		"interval": {"interval": "0s"},
		"src_mac":  {"src_mac": "nope"},
		"dst_ip":   {"dst_ip": "fe80::1"},
		"unknown":  {"colour": "blue"},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, New().Init(opts), core.ErrPluginInitFailed)
		})
	}
}

func TestCaptureHonorsCount(t *testing.T) {
	s := New()
	require.NoError(t, s.Init(map[string]any{"interval": "1ms", "count": 3, "message": "ping"}))

	out := make(chan core.RawFrame, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Capture(ctx, out))
	assert.Len(t, out, 3)
	assert.Equal(t, uint64(3), s.Stats().FramesProduced)

	f := <-out
	payload, err := decoder.ExtractPayload(f.Data)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(payload))
}

func TestCaptureStopsOnCancel(t *testing.T) {
	s := New()
	require.NoError(t, s.Init(map[string]any{"interval": "1h"}))

	out := make(chan core.RawFrame, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Capture(ctx, out) }()

	<-out
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Capture did not return after cancel")
	}
}
