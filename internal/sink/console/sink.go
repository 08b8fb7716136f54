// Package console prints packets and statistics as text lines.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"firestige.xyz/tanalyzer/internal/core"
)

const Name = "console"

type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSink writes to w, or stdout when w is nil.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{out: w}
}

func (s *Sink) Publish(pkt core.DecodedPacket) {
	s.mu.Lock()
	fmt.Fprintln(s.out, pkt.String())
	s.mu.Unlock()
}

func (s *Sink) PublishStatistics(stats core.CaptureStatistics) {
	s.mu.Lock()
	fmt.Fprintln(s.out, stats.String())
	s.mu.Unlock()
}
