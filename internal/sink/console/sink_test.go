package console

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"

	"firestige.xyz/tanalyzer/internal/core"
)

func TestPublish(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)

	s.Publish(core.DecodedPacket{
		Seq:         1,
		Timestamp:   time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Length:      60,
		LinkType:    layers.LinkTypeEthernet,
		HasEthernet: true,
		EtherType:   layers.EthernetTypeIPv4,
		SrcIP:       netip.MustParseAddr("10.0.0.3"),
		DstIP:       netip.MustParseAddr("10.0.0.4"),
		Ports:       &core.PortPair{Transport: layers.IPProtocolUDP, Src: 5353, Dst: 53},
	})

	assert.Equal(t, "#1 12:30:00.000 10.0.0.3:5353 -> 10.0.0.4:53 UDP len=60\n", buf.String())
}

func TestPublishStatistics(t *testing.T) {
	var buf bytes.Buffer
	NewSink(&buf).PublishStatistics(core.CaptureStatistics{Received: 5, Dropped: 1, InterfaceDropped: 2})

	assert.Equal(t, "Received packets: 5, Dropped packets: 1, Interface dropped packets: 2\n", buf.String())
}
