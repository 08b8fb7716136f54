//go:build !linux

package daemon

import (
	"errors"

	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/device"
)

func newRingDevice(config.CaptureConfig) (device.Device, error) {
	return nil, errors.New("afpacket capture is only available on linux")
}
