package daemon

import (
	"fmt"

	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/device/file"
	"firestige.xyz/tanalyzer/internal/device/live"
)

// newDevice builds the capture device selected by capture.source.
func newDevice(c config.CaptureConfig) (device.Device, error) {
	switch c.Source {
	case config.SourceLive:
		return live.New(live.Config{
			Interface:    c.Device,
			SnapLen:      c.SnapLen,
			BufferSizeMB: c.BufferSizeMB,
			BPFFilter:    c.BPFFilter,
		}), nil
	case config.SourceAFPacket:
		return newRingDevice(c)
	case config.SourceFile:
		return file.New(c.File), nil
	default:
		return nil, fmt.Errorf("unsupported capture source %q", c.Source)
	}
}

func openMode(c config.CaptureConfig) device.Mode {
	if c.Promiscuous {
		return device.Promiscuous
	}
	return device.Normal
}
