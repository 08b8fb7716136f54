package device

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/tanalyzer/internal/core"
)

// Reader is the read side of a capture handle. Every returned slice must be
// owned by the caller.
type Reader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Loop reads frames on its own goroutine and dispatches them to the
// registered arrival handlers until stopped or the reader fails.
type Loop struct {
	reader   Reader
	linkType layers.LinkType
	dev      Device
	events   *Events
	retry    func(error) bool

	received atomic.Uint64
	stopping atomic.Bool
	done     chan struct{}
}

// StartLoop starts reading. retry reports errors that only mean "nothing
// arrived yet", such as read timeouts.
func StartLoop(r Reader, linkType layers.LinkType, dev Device, events *Events, retry func(error) bool) *Loop {
	if retry == nil {
		retry = func(error) bool { return false }
	}
	l := &Loop{
		reader:   r,
		linkType: linkType,
		dev:      dev,
		events:   events,
		retry:    retry,
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for !l.stopping.Load() {
		data, ci, err := l.reader.ReadPacketData()
		if err != nil {
			if l.retry(err) {
				continue
			}
			if errors.Is(err, io.EOF) || l.stopping.Load() {
				l.events.DispatchStopped(nil)
			} else {
				l.events.DispatchStopped(fmt.Errorf("%w: read %s: %w", core.ErrDeviceFailure, l.dev.Name(), err))
			}
			return
		}
		l.received.Add(1)
		l.events.DispatchArrival(core.RawFrame{
			Timestamp: ci.Timestamp,
			LinkType:  l.linkType,
			Data:      data,
		}, l.dev)
	}
	l.events.DispatchStopped(nil)
}

// Stop asks the loop to end and waits until it has. The wait is bounded by
// the reader's timeout.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	<-l.done
}

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Received is the number of frames dispatched so far.
func (l *Loop) Received() uint64 {
	return l.received.Load()
}
