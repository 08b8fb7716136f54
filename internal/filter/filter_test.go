package filter

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"

	"firestige.xyz/tanalyzer/internal/core"
)

func ipPacket() core.DecodedPacket {
	return core.DecodedPacket{
		LinkType:    layers.LinkTypeEthernet,
		HasEthernet: true,
		EtherType:   layers.EthernetTypeIPv4,
		SrcIP:       netip.MustParseAddr("10.0.0.1"),
		DstIP:       netip.MustParseAddr("10.0.0.2"),
		Ports:       &core.PortPair{Transport: layers.IPProtocolTCP, Src: 1234, Dst: 80},
	}
}

func arpPacket() core.DecodedPacket {
	return core.DecodedPacket{
		LinkType:    layers.LinkTypeEthernet,
		HasEthernet: true,
		EtherType:   layers.EthernetTypeARP,
	}
}

func TestMatchesTruthTable(t *testing.T) {
	const (
		src = "10.0.0.1"
		dst = "10.0.0.2"
		typ = "ip"
	)

	tests := []struct {
		name     string
		criteria Criteria
		ip       bool
		arp      bool
	}{
		{"none", Criteria{}, true, true},
		{"type", Criteria{Type: typ}, true, false},
		{"dst", Criteria{DestinationIP: dst}, true, false},
		{"dst type", Criteria{DestinationIP: dst, Type: typ}, true, false},
		{"src", Criteria{SourceIP: src}, true, false},
		{"src type", Criteria{SourceIP: src, Type: typ}, true, false},
		{"src dst", Criteria{SourceIP: src, DestinationIP: dst}, true, false},
		{"src dst type", Criteria{SourceIP: src, DestinationIP: dst, Type: typ}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/ip", func(t *testing.T) {
			assert.Equal(t, tt.ip, Matches(tt.criteria, ipPacket()))
		})
		t.Run(tt.name+"/non-ip", func(t *testing.T) {
			assert.Equal(t, tt.arp, Matches(tt.criteria, arpPacket()))
		})
	}
}

func TestMatchesSubstringRules(t *testing.T) {
	p := ipPacket()

	assert.True(t, Matches(Criteria{SourceIP: "10.0"}, p))
	assert.True(t, Matches(Criteria{DestinationIP: ".2"}, p))
	assert.False(t, Matches(Criteria{SourceIP: "10.0.0.2"}, p))
	assert.False(t, Matches(Criteria{SourceIP: "10.0.0.1", DestinationIP: "10.0.0.9"}, p))

	assert.True(t, Matches(Criteria{Type: "IPV4"}, p), "type is case-insensitive")
	assert.True(t, Matches(Criteria{Type: "arp"}, arpPacket()))
	assert.False(t, Matches(Criteria{Type: "arp"}, p))
}

func TestMatchesTrimsCriteria(t *testing.T) {
	p := ipPacket()

	assert.True(t, Matches(Criteria{SourceIP: "  10.0.0.1 "}, p))
	assert.False(t, Matches(Criteria{SourceIP: "   ", Type: "\tipv4"}, arpPacket()))
	assert.True(t, Matches(Criteria{SourceIP: "   "}, arpPacket()), "blank criterion is empty")
}

func TestMatchesWithoutEthernet(t *testing.T) {
	p := ipPacket()
	p.HasEthernet = false
	p.LinkType = layers.LinkTypeRaw

	assert.True(t, Matches(Criteria{SourceIP: "10.0.0.1"}, p))
	assert.False(t, Matches(Criteria{Type: "ip"}, p))
}

func TestHolder(t *testing.T) {
	var zero Holder
	assert.Equal(t, Criteria{}, zero.Get())
	assert.True(t, zero.Matches(arpPacket()))

	h := NewHolder(Criteria{SourceIP: " 10.0.0.1 "})
	assert.Equal(t, "10.0.0.1", h.Get().SourceIP)
	assert.True(t, h.Matches(ipPacket()))

	h.Set(Criteria{SourceIP: "10.9.9.9"})
	assert.False(t, h.Matches(ipPacket()))
	assert.False(t, h.Get().IsEmpty())
}

func TestHolderConcurrentAccess(t *testing.T) {
	h := NewHolder(Criteria{})
	p := ipPacket()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				h.Set(Criteria{Type: "ipv4"})
			} else {
				h.Set(Criteria{SourceIP: "10.0.0"})
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			assert.True(t, h.Matches(p))
		}
	}()
	wg.Wait()
}
