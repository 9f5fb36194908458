//go:build linux

package afpacket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/vishvananda/netlink"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
)

// Capture reads frames until ctx is done. Each frame is copied out of the
// ring, so consumers may hold it.
func (s *Source) Capture(ctx context.Context, output chan<- core.RawFrame) error {
	logger := log.GetLogger().WithField("source", pluginName).WithField("interface", s.config.Interface)

	if err := s.prepareLink(logger); err != nil {
		s.errors.Add(1)
		return err
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.config.Interface),
		afpacket.OptFrameSize(frameSize(s.config.SnapLen)),
		afpacket.OptBlockSize(s.config.BlockSize),
		afpacket.OptNumBlocks(s.config.NumBlocks),
		afpacket.OptPollTimeout(100*time.Millisecond),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		s.errors.Add(1)
		return fmt.Errorf("afpacket: create TPacket handle: %w", err)
	}
	defer handle.Close()

	if s.config.IPv4Only {
		raw, err := assembleIPv4Filter(uint32(s.config.SnapLen))
		if err != nil {
			return fmt.Errorf("afpacket: assemble filter: %w", err)
		}
		if err := handle.SetBPF(raw); err != nil {
			return fmt.Errorf("afpacket: attach filter: %w", err)
		}
		logger.Debug("ipv4 filter attached")
	}

	logger.Info("afpacket capture started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("afpacket capture stopped")
			return nil
		default:
		}

		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("afpacket capture stopped")
				return nil
			}
			// poll timeout or EINTR
			continue
		}
		s.framesReceived.Add(1)

		// Non-blocking send: prefer drop over stalling the ring.
		select {
		case output <- core.RawFrame{Data: data, Timestamp: ci.Timestamp, OrigLen: uint32(ci.Length)}:
		case <-ctx.Done():
			return nil
		default:
			s.framesDropped.Add(1)
		}
	}
}

// prepareLink checks the interface and enables promiscuous mode when
// configured, the way a sniffer node listens to every station.
func (s *Source) prepareLink(logger log.Logger) error {
	link, err := netlink.LinkByName(s.config.Interface)
	if err != nil {
		return fmt.Errorf("afpacket: lookup %s: %w", s.config.Interface, err)
	}
	attrs := link.Attrs()
	if attrs.OperState != netlink.OperUp && attrs.OperState != netlink.OperUnknown {
		logger.Warnf("interface is %s, frames may not arrive", attrs.OperState)
	}
	if attrs.MTU+14 > s.config.SnapLen {
		logger.Warnf("snap_len %d is smaller than link mtu %d plus header, long frames are truncated", s.config.SnapLen, attrs.MTU)
	}
	if s.config.Promiscuous {
		if err := netlink.SetPromiscOn(link); err != nil {
			return fmt.Errorf("afpacket: promiscuous mode on %s: %w", s.config.Interface, err)
		}
		logger.Info("promiscuous mode enabled")
	}
	return nil
}
