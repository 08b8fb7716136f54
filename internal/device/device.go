// Package device defines the capture device abstraction the session drives
// and the plumbing shared by its implementations.
package device

import (
	"errors"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tanalyzer/internal/core"
)

// Mode is the open mode of a capture device.
type Mode int

const (
	Normal Mode = iota
	Promiscuous
)

func (m Mode) String() string {
	if m == Promiscuous {
		return "promiscuous"
	}
	return "normal"
}

// DefaultReadTimeout bounds how long a blocking read waits, and so how long
// Stop may take.
const DefaultReadTimeout = time.Second

var (
	ErrNotOpen             = errors.New("device not open")
	ErrAlreadyStarted      = errors.New("capture already started")
	ErrTransmitUnsupported = errors.New("device cannot transmit")
)

// ArrivalHandler is called on the device's capture goroutine for every
// frame. It must return quickly.
type ArrivalHandler func(frame core.RawFrame, dev Device)

// StoppedHandler is called once when capture ends. err is nil when the
// capture completed normally.
type StoppedHandler func(err error)

type Device interface {
	Name() string
	Open(mode Mode, readTimeout time.Duration) error
	Start() error
	Stop() error
	Close() error
	Statistics() (core.CaptureStatistics, error)
	Transmit(data []byte) error
	LinkType() layers.LinkType
	OnPacketArrival(h ArrivalHandler) (unsubscribe func())
	OnCaptureStopped(h StoppedHandler) (unsubscribe func())
}
