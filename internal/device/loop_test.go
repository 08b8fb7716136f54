package device

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanalyzer/internal/core"
)

var errTimeout = errors.New("timeout")

type step struct {
	data []byte
	err  error
}

type scriptReader struct {
	mu    sync.Mutex
	steps []step
	idle  error
}

func (r *scriptReader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		time.Sleep(time.Millisecond)
		return nil, gopacket.CaptureInfo{}, r.idle
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return s.data, gopacket.CaptureInfo{Timestamp: time.Unix(1, 0), CaptureLength: len(s.data)}, s.err
}

type namedDevice struct {
	Events
}

func (*namedDevice) Name() string                                { return "test0" }
func (*namedDevice) Open(Mode, time.Duration) error              { return nil }
func (*namedDevice) Start() error                                { return nil }
func (*namedDevice) Stop() error                                 { return nil }
func (*namedDevice) Close() error                                { return nil }
func (*namedDevice) Statistics() (core.CaptureStatistics, error) { return core.CaptureStatistics{}, nil }
func (*namedDevice) Transmit([]byte) error                       { return ErrTransmitUnsupported }
func (*namedDevice) LinkType() layers.LinkType                   { return layers.LinkTypeEthernet }

type collector struct {
	mu      sync.Mutex
	frames  []core.RawFrame
	stopped []error
	done    chan struct{}
}

func newCollector(dev *namedDevice) *collector {
	c := &collector{done: make(chan struct{})}
	dev.OnPacketArrival(func(f core.RawFrame, _ Device) {
		c.mu.Lock()
		c.frames = append(c.frames, f)
		c.mu.Unlock()
	})
	dev.OnCaptureStopped(func(err error) {
		c.mu.Lock()
		c.stopped = append(c.stopped, err)
		c.mu.Unlock()
		close(c.done)
	})
	return c
}

func TestLoopDeliversUntilEOF(t *testing.T) {
	dev := &namedDevice{}
	c := newCollector(dev)
	r := &scriptReader{steps: []step{{data: []byte{1}}, {err: errTimeout}, {data: []byte{2}}, {err: io.EOF}}}

	l := StartLoop(r, layers.LinkTypeEthernet, dev, &dev.Events, func(err error) bool { return errors.Is(err, errTimeout) })
	<-c.done
	l.Stop()

	require.Len(t, c.frames, 2)
	assert.Equal(t, []byte{1}, c.frames[0].Data)
	assert.Equal(t, layers.LinkTypeEthernet, c.frames[1].LinkType)
	assert.Equal(t, time.Unix(1, 0), c.frames[1].Timestamp)
	assert.Equal(t, []error{nil}, c.stopped)
	assert.Equal(t, uint64(2), l.Received())
}

func TestLoopReportsReadFailure(t *testing.T) {
	dev := &namedDevice{}
	c := newCollector(dev)
	r := &scriptReader{steps: []step{{err: errors.New("interface went away")}}}

	StartLoop(r, layers.LinkTypeEthernet, dev, &dev.Events, nil)
	<-c.done

	require.Len(t, c.stopped, 1)
	assert.ErrorIs(t, c.stopped[0], core.ErrDeviceFailure)
	assert.Contains(t, c.stopped[0].Error(), "test0")
}

func TestLoopStop(t *testing.T) {
	dev := &namedDevice{}
	c := newCollector(dev)
	r := &scriptReader{idle: errTimeout}

	l := StartLoop(r, layers.LinkTypeEthernet, dev, &dev.Events, func(err error) bool { return errors.Is(err, errTimeout) })
	l.Stop()

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("stopped handler not called")
	}
	assert.Equal(t, []error{nil}, c.stopped)
	select {
	case <-l.Done():
	default:
		t.Fatal("loop still running")
	}
}

func TestEventsUnsubscribe(t *testing.T) {
	var e Events
	calls := 0
	unsub := e.OnPacketArrival(func(core.RawFrame, Device) { calls++ })
	stops := 0
	unsubStop := e.OnCaptureStopped(func(error) { stops++ })

	e.DispatchArrival(core.RawFrame{}, nil)
	e.DispatchStopped(nil)
	unsub()
	unsubStop()
	e.DispatchArrival(core.RawFrame{}, nil)
	e.DispatchStopped(nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stops)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "promiscuous", Promiscuous.String())
}
