// Package file replays a pcap or pcapng capture as if it were live.
package file

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/log"
)

const Name = "file"

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type Device struct {
	device.Events

	path   string
	logger log.Logger

	mu       sync.Mutex
	f        *os.File
	reader   device.Reader
	linkType layers.LinkType
	loop     *device.Loop
}

func New(path string) *Device {
	return &Device{
		path:   path,
		logger: log.GetLogger().WithField("device", path),
	}
}

func (d *Device) Name() string {
	return d.path
}

// Open reads the file header. Mode and read timeout do not apply to files.
func (d *Device) Open(device.Mode, time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f != nil {
		return nil
	}

	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrDeviceFailure, err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: read %s: %w", core.ErrDeviceFailure, d.path, err)
	}

	if bytes.Equal(magic, pcapngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return fmt.Errorf("%w: pcapng %s: %w", core.ErrDeviceFailure, d.path, err)
		}
		d.reader, d.linkType = r, r.LinkType()
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return fmt.Errorf("%w: pcap %s: %w", core.ErrDeviceFailure, d.path, err)
		}
		d.reader, d.linkType = r, r.LinkType()
	}
	d.f = f
	d.logger.Infof("opened capture file, link type %s", d.linkType)
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return device.ErrNotOpen
	}
	if d.loop != nil {
		return device.ErrAlreadyStarted
	}
	d.loop = device.StartLoop(d.reader, d.linkType, d, &d.Events, nil)
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	loop := d.loop
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
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.loop = nil
	return err
}

// Statistics counts frames replayed so far. Files never drop.
func (d *Device) Statistics() (core.CaptureStatistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return core.CaptureStatistics{}, device.ErrNotOpen
	}
	var n uint64
	if d.loop != nil {
		n = d.loop.Received()
	}
	return core.CaptureStatistics{Received: n}, nil
}

func (d *Device) Transmit([]byte) error {
	return device.ErrTransmitUnsupported
}

func (d *Device) LinkType() layers.LinkType {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return layers.LinkTypeEthernet
	}
	return d.linkType
}
