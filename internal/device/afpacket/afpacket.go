//go:build linux

// Package afpacket captures through a Linux TPACKET_V3 memory-mapped ring.
package afpacket

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/log"
)

const Name = "afpacket"

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
	handle *afpacket.TPacket
	loop   *device.Loop
}

func New(cfg Config) *Device {
	if cfg.SnapLen <= 0 {
		cfg.SnapLen = 65535
	}
	if cfg.BufferSizeMB <= 0 {
		cfg.BufferSizeMB = 8
	}
	return &Device{
		cfg:    cfg,
		logger: log.GetLogger().WithField("device", cfg.Interface),
	}
}

func (d *Device) Name() string {
	return d.cfg.Interface
}

// Open maps the ring. The socket sees every frame the interface accepts;
// promiscuous mode has to be enabled on the interface itself.
func (d *Device) Open(mode device.Mode, readTimeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		return nil
	}
	if readTimeout <= 0 {
		readTimeout = device.DefaultReadTimeout
	}

	frameSize, blockSize, numBlocks, err := ringLayout(d.cfg.BufferSizeMB, d.cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return d.fail("size ring", err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(d.cfg.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(readTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return d.fail("open ring", err)
	}

	if d.cfg.BPFFilter != "" {
		prog, err := compileBPF(d.cfg.BPFFilter, frameSize)
		if err != nil {
			tp.Close()
			return d.fail("compile bpf", err)
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return d.fail("attach bpf", err)
		}
	}

	d.handle = tp
	if mode == device.Promiscuous {
		d.logger.Warn("afpacket does not switch the interface to promiscuous mode")
	}
	d.logger.Infof("ring mapped: %d blocks of %d bytes, frame %d", numBlocks, blockSize, frameSize)
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
	d.loop = device.StartLoop(d.handle, layers.LinkTypeEthernet, d, &d.Events, isTimeout)
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
	_, v3, err := d.handle.SocketStats()
	if err != nil {
		return core.CaptureStatistics{}, fmt.Errorf("socket stats: %w", err)
	}
	return core.CaptureStatistics{
		Received: uint64(v3.Packets()),
		Dropped:  uint64(v3.Drops()),
		// Ring freezes are the closest thing to interface drops.
		InterfaceDropped: uint64(v3.QueueFreezes()),
	}, nil
}

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
	return layers.LinkTypeEthernet
}

func (d *Device) fail(op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", core.ErrDeviceFailure, op, d.cfg.Interface, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout)
}

// compileBPF compiles a tcpdump expression with libpcap and converts it to
// the form the socket filter expects.
func compileBPF(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, err
	}
	raw := make([]bpf.RawInstruction, len(insns))
	for i, ins := range insns {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
