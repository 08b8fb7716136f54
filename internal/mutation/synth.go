package mutation

import (
	"math/rand"
	"net"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tanalyzer/internal/codec"
)

const (
	// ExperimentalProtocol marks IPv4 packets synthesized without a
	// transport layer (RFC 3692).
	ExperimentalProtocol layers.IPProtocol = 253
	// ExperimentalEtherType marks Ethernet frames synthesized without an
	// IPv4 layer (IEEE local experimental).
	ExperimentalEtherType layers.EthernetType = 0x88B5

	randomPayloadLen = 46
)

// synthesizer fills every field the template does not override with a
// random value. It is not safe for concurrent use.
type synthesizer struct {
	rnd *rand.Rand
}

func (s *synthesizer) build(t Template) *codec.Stack {
	stack := &codec.Stack{Ethernet: s.ethernet()}
	if t.Ethernet != nil {
		stack.Ethernet.SrcMAC = cloneMAC(t.Ethernet.Src)
		stack.Ethernet.DstMAC = cloneMAC(t.Ethernet.Dst)
	}
	if t.IPv4 == nil {
		stack.Payload = s.bytes(randomPayloadLen)
		return stack
	}

	stack.IPv4 = s.ipv4()
	stack.IPv4.SrcIP = net.IP(t.IPv4.Src.AsSlice())
	stack.IPv4.DstIP = net.IP(t.IPv4.Dst.AsSlice())
	stack.IPv4.TTL = t.IPv4.TTL

	switch {
	case t.TCP != nil:
		tcp := s.tcp()
		tcp.SrcPort = layers.TCPPort(t.TCP.SrcPort)
		tcp.DstPort = layers.TCPPort(t.TCP.DstPort)
		invertFlags(tcp)
		tcp.Window = t.TCP.Window
		tcp.Seq = t.TCP.Seq
		tcp.Ack = t.TCP.Ack
		stack.TCP = tcp
		stack.Payload = append([]byte(nil), t.TCP.Payload...)
	case t.UDP != nil:
		udp := s.udp()
		udp.SrcPort = layers.UDPPort(t.UDP.SrcPort)
		udp.DstPort = layers.UDPPort(t.UDP.DstPort)
		stack.UDP = udp
	default:
		stack.IPv4.Protocol = ExperimentalProtocol
		stack.Payload = s.bytes(randomPayloadLen - 20)
	}
	return stack
}

// invertFlags flips SYN, FIN and ACK.
func invertFlags(tcp *layers.TCP) {
	tcp.SYN = !tcp.SYN
	tcp.FIN = !tcp.FIN
	tcp.ACK = !tcp.ACK
}

func (s *synthesizer) ethernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       s.mac(),
		DstMAC:       s.mac(),
		EthernetType: ExperimentalEtherType,
	}
}

func (s *synthesizer) ipv4() *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TOS:      uint8(s.rnd.Intn(256)),
		Id:       uint16(s.rnd.Intn(1 << 16)),
		TTL:      uint8(1 + s.rnd.Intn(255)),
		SrcIP:    net.IP(s.bytes(4)),
		DstIP:    net.IP(s.bytes(4)),
		Protocol: ExperimentalProtocol,
	}
}

func (s *synthesizer) tcp() *layers.TCP {
	return &layers.TCP{
		SrcPort: layers.TCPPort(s.rnd.Intn(1 << 16)),
		DstPort: layers.TCPPort(s.rnd.Intn(1 << 16)),
		Seq:     s.rnd.Uint32(),
		Ack:     s.rnd.Uint32(),
		SYN:     s.rnd.Intn(2) == 1,
		FIN:     s.rnd.Intn(2) == 1,
		ACK:     s.rnd.Intn(2) == 1,
		Window:  uint16(s.rnd.Intn(1 << 16)),
	}
}

func (s *synthesizer) udp() *layers.UDP {
	return &layers.UDP{
		SrcPort: layers.UDPPort(s.rnd.Intn(1 << 16)),
		DstPort: layers.UDPPort(s.rnd.Intn(1 << 16)),
	}
}

// mac returns a random locally administered unicast address.
func (s *synthesizer) mac() net.HardwareAddr {
	b := s.bytes(6)
	b[0] = (b[0] | 0x02) &^ 0x01
	return b
}

func (s *synthesizer) bytes(n int) []byte {
	b := make([]byte, n)
	s.rnd.Read(b)
	return b
}

func cloneMAC(m net.HardwareAddr) net.HardwareAddr {
	return append(net.HardwareAddr(nil), m...)
}
