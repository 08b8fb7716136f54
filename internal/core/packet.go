// Package core defines the data types shared by the capture pipeline.
package core

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket/layers"
)

// RawFrame is a captured link-layer frame. It is never modified after the
// capture device hands it over.
type RawFrame struct {
	Timestamp time.Time
	LinkType  layers.LinkType
	Data      []byte
}

// PortPair is the transport endpoint pair of a TCP or UDP packet.
type PortPair struct {
	Transport layers.IPProtocol
	Src       uint16
	Dst       uint16
}

// DecodedPacket is the display view of a RawFrame.
type DecodedPacket struct {
	Seq       uint64
	LinkType  layers.LinkType
	Timestamp time.Time
	Length    int

	// HasEthernet reports whether EtherType is meaningful.
	HasEthernet bool
	EtherType   layers.EthernetType

	// Zero (invalid) addresses mean the frame carried no IPv4 header.
	SrcIP netip.Addr
	DstIP netip.Addr

	Ports *PortPair
}

// HasIP reports whether the packet carried an IPv4 header.
func (p DecodedPacket) HasIP() bool {
	return p.SrcIP.IsValid() && p.DstIP.IsValid()
}

// Type returns the protocol type name used by the display and the filter,
// or "" when the frame was not Ethernet.
func (p DecodedPacket) Type() string {
	if !p.HasEthernet {
		return ""
	}
	return p.EtherType.String()
}

func (p DecodedPacket) String() string {
	src, dst := "-", "-"
	if p.SrcIP.IsValid() {
		src = p.SrcIP.String()
	}
	if p.DstIP.IsValid() {
		dst = p.DstIP.String()
	}
	if p.Ports != nil {
		src = fmt.Sprintf("%s:%d", src, p.Ports.Src)
		dst = fmt.Sprintf("%s:%d", dst, p.Ports.Dst)
	}
	proto := p.Type()
	if p.Ports != nil {
		proto = p.Ports.Transport.String()
	}
	if proto == "" {
		proto = p.LinkType.String()
	}
	return fmt.Sprintf("#%d %s %s -> %s %s len=%d",
		p.Seq, p.Timestamp.Format("15:04:05.000"), src, dst, proto, p.Length)
}

// CaptureStatistics is a snapshot of the device counters.
type CaptureStatistics struct {
	Received         uint64
	Dropped          uint64
	InterfaceDropped uint64
}

func (s CaptureStatistics) String() string {
	return fmt.Sprintf("Received packets: %d, Dropped packets: %d, Interface dropped packets: %d",
		s.Received, s.Dropped, s.InterfaceDropped)
}
