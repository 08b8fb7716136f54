// Package sink defines where accepted packets and capture statistics go.
package sink

import "firestige.xyz/tanalyzer/internal/core"

// Sink receives the worker's output. Implementations must return quickly;
// anything slow belongs behind a buffer owned by the sink.
type Sink interface {
	Publish(pkt core.DecodedPacket)
	PublishStatistics(stats core.CaptureStatistics)
}

// Multi fans out to several sinks in order.
type Multi []Sink

func (m Multi) Publish(pkt core.DecodedPacket) {
	for _, s := range m {
		s.Publish(pkt)
	}
}

func (m Multi) PublishStatistics(stats core.CaptureStatistics) {
	for _, s := range m {
		s.PublishStatistics(stats)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(core.DecodedPacket)               {}
func (Discard) PublishStatistics(core.CaptureStatistics) {}
