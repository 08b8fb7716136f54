//go:build linux

package daemon

import (
	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/device/afpacket"
)

func newRingDevice(c config.CaptureConfig) (device.Device, error) {
	return afpacket.New(afpacket.Config{
		Interface:    c.Device,
		SnapLen:      c.SnapLen,
		BufferSizeMB: c.BufferSizeMB,
		BPFFilter:    c.BPFFilter,
	}), nil
}
