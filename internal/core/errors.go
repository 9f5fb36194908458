// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w", err).
var (
	// Frame record errors
	ErrFrameTooLarge = errors.New("t1sbridge: frame exceeds link mtu")
	ErrEmptyFrame    = errors.New("t1sbridge: empty frame")

	// Payload extraction errors
	ErrPacketTooShort = errors.New("t1sbridge: packet too short")
	ErrNotIPv4        = errors.New("t1sbridge: not an ipv4 packet")
	ErrNotUDP         = errors.New("t1sbridge: not a udp datagram")
	ErrFragment       = errors.New("t1sbridge: non-first ipv4 fragment")
	ErrUDPLength      = errors.New("t1sbridge: invalid udp length")
	ErrPayloadOverrun = errors.New("t1sbridge: payload exceeds frame")

	// Hand-off errors
	ErrQueueFull   = errors.New("t1sbridge: frame queue full")
	ErrNoBuffer    = errors.New("t1sbridge: no stack buffer available")
	ErrStackClosed = errors.New("t1sbridge: network stack stopped")

	// Capture errors
	ErrCaptureClosed = errors.New("t1sbridge: capture session closed")

	// Plugin errors
	ErrPluginNotFound   = errors.New("t1sbridge: plugin not found")
	ErrPluginInitFailed = errors.New("t1sbridge: plugin init failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("t1sbridge: invalid configuration")
)
