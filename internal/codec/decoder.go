// Package codec decodes captured frames into Ethernet/IPv4/TCP/UDP layers and
// serializes layer stacks back to wire bytes.
package codec

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/tanalyzer/internal/core"
)

const (
	minEthernetLen = 14
	minIPv4Len     = 20
)

// Decoder reuses its layer structs between calls and must not be shared
// between goroutines.
type Decoder struct {
	ethParser *gopacket.DecodingLayerParser
	ipParser  *gopacket.DecodingLayerParser
	eth       layers.Ethernet
	ipv4      layers.IPv4
	tcp       layers.TCP
	udp       layers.UDP
	decoded   []gopacket.LayerType
}

func NewDecoder() *Decoder {
	d := &Decoder{
		decoded: make([]gopacket.LayerType, 0, 4),
	}
	// Unsupported next layers (ARP, IPv6, ICMP, application payloads) end the
	// walk without failing the frame.
	d.ethParser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.ipv4, &d.tcp, &d.udp)
	d.ethParser.IgnoreUnsupported = true
	d.ipParser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &d.ipv4, &d.tcp, &d.udp)
	d.ipParser.IgnoreUnsupported = true
	return d
}

// DecodeFrame decodes a captured frame and stamps it with the frame's
// arrival time.
func (d *Decoder) DecodeFrame(frame core.RawFrame) (core.DecodedPacket, error) {
	pkt, err := d.Decode(frame.LinkType, frame.Data)
	pkt.Timestamp = frame.Timestamp
	return pkt, err
}

// Decode parses data as a frame of the given link type. Layers the decoder
// does not understand are left absent.
func (d *Decoder) Decode(linkType layers.LinkType, data []byte) (core.DecodedPacket, error) {
	pkt := core.DecodedPacket{
		LinkType: linkType,
		Length:   len(data),
	}
	if err := d.decodeLayers(linkType, data); err != nil {
		return pkt, err
	}

	for _, typ := range d.decoded {
		switch typ {
		case layers.LayerTypeEthernet:
			pkt.HasEthernet = true
			pkt.EtherType = d.eth.EthernetType
		case layers.LayerTypeIPv4:
			pkt.SrcIP = addrFromIP(d.ipv4.SrcIP)
			pkt.DstIP = addrFromIP(d.ipv4.DstIP)
		case layers.LayerTypeTCP:
			pkt.Ports = &core.PortPair{
				Transport: layers.IPProtocolTCP,
				Src:       uint16(d.tcp.SrcPort),
				Dst:       uint16(d.tcp.DstPort),
			}
		case layers.LayerTypeUDP:
			pkt.Ports = &core.PortPair{
				Transport: layers.IPProtocolUDP,
				Src:       uint16(d.udp.SrcPort),
				Dst:       uint16(d.udp.DstPort),
			}
		}
	}
	return pkt, nil
}

// DecodeStack parses data like Decode and returns a deep copy of the decoded
// layers that the caller may modify and pass to Encode.
func (d *Decoder) DecodeStack(linkType layers.LinkType, data []byte) (*Stack, error) {
	if err := d.decodeLayers(linkType, data); err != nil {
		return nil, err
	}

	s := &Stack{}
	var payload []byte
	for _, typ := range d.decoded {
		switch typ {
		case layers.LayerTypeEthernet:
			eth := d.eth
			eth.BaseLayer = layers.BaseLayer{}
			eth.SrcMAC = cloneBytes(eth.SrcMAC)
			eth.DstMAC = cloneBytes(eth.DstMAC)
			s.Ethernet = &eth
			payload = d.eth.Payload
		case layers.LayerTypeIPv4:
			ip := d.ipv4
			ip.BaseLayer = layers.BaseLayer{}
			ip.SrcIP = net.IP(cloneBytes(ip.SrcIP))
			ip.DstIP = net.IP(cloneBytes(ip.DstIP))
			ip.Options = cloneIPv4Options(ip.Options)
			ip.Padding = cloneBytes(ip.Padding)
			s.IPv4 = &ip
			payload = d.ipv4.Payload
		case layers.LayerTypeTCP:
			tcp := d.tcp
			tcp.BaseLayer = layers.BaseLayer{}
			tcp.Options = cloneTCPOptions(tcp.Options)
			tcp.Padding = cloneBytes(tcp.Padding)
			s.TCP = &tcp
			payload = d.tcp.Payload
		case layers.LayerTypeUDP:
			udp := d.udp
			udp.BaseLayer = layers.BaseLayer{}
			s.UDP = &udp
			payload = d.udp.Payload
		}
	}
	if len(d.decoded) == 0 {
		payload = data
	}
	s.Payload = cloneBytes(payload)
	return s, nil
}

func (d *Decoder) decodeLayers(linkType layers.LinkType, data []byte) error {
	d.decoded = d.decoded[:0]

	var (
		parser *gopacket.DecodingLayerParser
		minLen int
	)
	switch linkType {
	case layers.LinkTypeEthernet:
		parser, minLen = d.ethParser, minEthernetLen
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		parser, minLen = d.ipParser, minIPv4Len
	default:
		return nil
	}

	if len(data) < minLen {
		return fmt.Errorf("%w: %d bytes is shorter than the %d byte %s header",
			core.ErrMalformedFrame, len(data), minLen, linkType)
	}
	if parser == d.ipParser && data[0]>>4 != 4 {
		// raw link type carrying something other than IPv4
		return nil
	}
	if err := parser.DecodeLayers(data, &d.decoded); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedFrame, err)
	}
	if parser.Truncated {
		return fmt.Errorf("%w: inner length exceeds the %d byte buffer", core.ErrMalformedFrame, len(data))
	}
	return nil
}

func addrFromIP(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip.To4())
	if !ok {
		return netip.Addr{}
	}
	return addr
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneIPv4Options(opts []layers.IPv4Option) []layers.IPv4Option {
	if opts == nil {
		return nil
	}
	out := make([]layers.IPv4Option, len(opts))
	for i, o := range opts {
		o.OptionData = cloneBytes(o.OptionData)
		out[i] = o
	}
	return out
}

func cloneTCPOptions(opts []layers.TCPOption) []layers.TCPOption {
	if opts == nil {
		return nil
	}
	out := make([]layers.TCPOption, len(opts))
	for i, o := range opts {
		o.OptionData = cloneBytes(o.OptionData)
		out[i] = o
	}
	return out
}
