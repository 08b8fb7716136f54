// Package mutation synthesizes crafted packets from a template and replays
// them through the capture device while capture is running.
package mutation

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Template holds per-layer overrides. A nil group is not applied.
type Template struct {
	Ethernet *EthernetOverride
	IPv4     *IPv4Override
	TCP      *TCPOverride
	UDP      *UDPOverride
}

type EthernetOverride struct {
	Src net.HardwareAddr
	Dst net.HardwareAddr
}

type IPv4Override struct {
	Src netip.Addr
	Dst netip.Addr
	TTL uint8
}

type TCPOverride struct {
	SrcPort uint16
	DstPort uint16
	Window  uint16
	Seq     uint32
	Ack     uint32
	Payload []byte
}

type UDPOverride struct {
	SrcPort uint16
	DstPort uint16
}

// Validate checks that every present group is usable.
func (t Template) Validate() error {
	if t.Ethernet != nil {
		if len(t.Ethernet.Src) != 6 || len(t.Ethernet.Dst) != 6 {
			return fmt.Errorf("ethernet: source and destination must be 6 byte MAC addresses")
		}
	}
	if t.IPv4 != nil {
		if !t.IPv4.Src.Is4() || !t.IPv4.Dst.Is4() {
			return fmt.Errorf("ipv4: source and destination must be IPv4 addresses")
		}
	}
	if (t.TCP != nil || t.UDP != nil) && t.IPv4 == nil {
		return fmt.Errorf("transport overrides require the ipv4 group")
	}
	return nil
}

func (t Template) String() string {
	var parts []string
	if t.Ethernet != nil {
		parts = append(parts, fmt.Sprintf("eth %s>%s", t.Ethernet.Src, t.Ethernet.Dst))
	}
	if t.IPv4 != nil {
		parts = append(parts, fmt.Sprintf("ipv4 %s>%s ttl=%d", t.IPv4.Src, t.IPv4.Dst, t.IPv4.TTL))
	}
	if t.TCP != nil {
		parts = append(parts, fmt.Sprintf("tcp %d>%d win=%d seq=%d ack=%d payload=%d",
			t.TCP.SrcPort, t.TCP.DstPort, t.TCP.Window, t.TCP.Seq, t.TCP.Ack, len(t.TCP.Payload)))
	}
	if t.UDP != nil {
		parts = append(parts, fmt.Sprintf("udp %d>%d", t.UDP.SrcPort, t.UDP.DstPort))
	}
	if len(parts) == 0 {
		return "random ethernet"
	}
	return strings.Join(parts, " ")
}
