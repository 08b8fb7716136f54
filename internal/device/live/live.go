// Package live captures from a network interface through libpcap.
package live

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/log"
)

const Name = "live"

type Config struct {
	Interface    string
	SnapLen      int
	BufferSizeMB int
	BPFFilter    string
}

type Device struct {
	device.Events

	cfg    Config
	logger log.Logger

	mu     sync.Mutex
	handle *pcap.Handle
	loop   *device.Loop
}

func New(cfg Config) *Device {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	return &Device{
		cfg:    cfg,
		logger: log.GetLogger().WithField("device", cfg.Interface),
	}
}

func (d *Device) Name() string {
	return d.cfg.Interface
}

func (d *Device) Open(mode device.Mode, readTimeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		return nil
	}
	if readTimeout <= 0 {
		readTimeout = device.DefaultReadTimeout
	}

	inactive, err := pcap.NewInactiveHandle(d.cfg.Interface)
	if err != nil {
		return d.fail("create handle", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(d.cfg.SnapLen); err != nil {
		return d.fail("set snap length", err)
	}
	if err := inactive.SetPromisc(mode == device.Promiscuous); err != nil {
		return d.fail("set promiscuous", err)
	}
	if err := inactive.SetTimeout(readTimeout); err != nil {
		return d.fail("set read timeout", err)
	}
	if d.cfg.BufferSizeMB > 0 {
		if err := inactive.SetBufferSize(d.cfg.BufferSizeMB * 1024 * 1024); err != nil {
			return d.fail("set buffer size", err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return d.fail("activate", err)
	}
	if d.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(d.cfg.BPFFilter); err != nil {
			handle.Close()
			return d.fail("set bpf filter", err)
		}
	}
	d.handle = handle
	d.logger.Infof("opened in %s mode, link type %s", mode, handle.LinkType())
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return device.ErrNotOpen
	}
	if d.loop != nil {
		return device.ErrAlreadyStarted
	}
	d.loop = device.StartLoop(d.handle, d.handle.LinkType(), d, &d.Events, isTimeout)
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	loop := d.loop
	d.loop = nil
	d.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
	return nil
}

func (d *Device) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		d.handle.Close()
		d.handle = nil
		d.logger.Info("closed")
	}
	return nil
}

func (d *Device) Statistics() (core.CaptureStatistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return core.CaptureStatistics{}, device.ErrNotOpen
	}
	s, err := d.handle.Stats()
	if err != nil {
		return core.CaptureStatistics{}, fmt.Errorf("pcap stats: %w", err)
	}
	return core.CaptureStatistics{
		Received:         uint64(s.PacketsReceived),
		Dropped:          uint64(s.PacketsDropped),
		InterfaceDropped: uint64(s.PacketsIfDropped),
	}, nil
}

// Transmit injects data on the interface. It is safe to call from an
// arrival handler.
func (d *Device) Transmit(data []byte) error {
	d.mu.Lock()
	h := d.handle
	d.mu.Unlock()
	if h == nil {
		return device.ErrNotOpen
	}
	return h.WritePacketData(data)
}

func (d *Device) LinkType() layers.LinkType {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return layers.LinkTypeEthernet
	}
	return d.handle.LinkType()
}

func (d *Device) fail(op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", core.ErrDeviceFailure, op, d.cfg.Interface, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, pcap.NextErrorTimeoutExpired)
}
