package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/tanalyzer/internal/core"
)

type recorder struct {
	packets []core.DecodedPacket
	stats   []core.CaptureStatistics
}

func (r *recorder) Publish(p core.DecodedPacket)               { r.packets = append(r.packets, p) }
func (r *recorder) PublishStatistics(s core.CaptureStatistics) { r.stats = append(r.stats, s) }

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, Discard{}, b}

	m.Publish(core.DecodedPacket{Seq: 4})
	m.PublishStatistics(core.CaptureStatistics{Received: 9})

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.packets, 1)
		assert.Equal(t, uint64(4), r.packets[0].Seq)
		assert.Equal(t, uint64(9), r.stats[0].Received)
	}
}
