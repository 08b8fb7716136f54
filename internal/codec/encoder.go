package codec

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Stack is a mutable Ethernet/IPv4/TCP|UDP layer stack. Nil layers are
// absent. Payload is the innermost payload.
type Stack struct {
	Ethernet *layers.Ethernet
	IPv4     *layers.IPv4
	TCP      *layers.TCP
	UDP      *layers.UDP
	Payload  []byte
}

var (
	errEmptyStack      = errors.New("empty layer stack")
	errBothTransports  = errors.New("stack carries both TCP and UDP")
	errTransportNoIPv4 = errors.New("transport layer without IPv4 header")
	serializeOptions   = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
)

// Encode serializes the stack. Length fields, IPv4 header checksum, TCP/UDP
// pseudo-header checksums, the Ethernet type and the IPv4 protocol are
// recomputed from the layers present. Short Ethernet frames are zero padded
// to the 60 byte minimum.
func Encode(s *Stack) ([]byte, error) {
	if s == nil || (s.Ethernet == nil && s.IPv4 == nil) {
		return nil, errEmptyStack
	}
	if s.TCP != nil && s.UDP != nil {
		return nil, errBothTransports
	}
	if (s.TCP != nil || s.UDP != nil) && s.IPv4 == nil {
		return nil, errTransportNoIPv4
	}

	stack := make([]gopacket.SerializableLayer, 0, 4)
	if s.Ethernet != nil {
		if s.IPv4 != nil {
			s.Ethernet.EthernetType = layers.EthernetTypeIPv4
		}
		stack = append(stack, s.Ethernet)
	}
	if s.IPv4 != nil {
		s.IPv4.Version = 4
		switch {
		case s.TCP != nil:
			s.IPv4.Protocol = layers.IPProtocolTCP
		case s.UDP != nil:
			s.IPv4.Protocol = layers.IPProtocolUDP
		}
		stack = append(stack, s.IPv4)
	}
	switch {
	case s.TCP != nil:
		if err := s.TCP.SetNetworkLayerForChecksum(s.IPv4); err != nil {
			return nil, fmt.Errorf("tcp checksum layer: %w", err)
		}
		stack = append(stack, s.TCP)
	case s.UDP != nil:
		if err := s.UDP.SetNetworkLayerForChecksum(s.IPv4); err != nil {
			return nil, fmt.Errorf("udp checksum layer: %w", err)
		}
		stack = append(stack, s.UDP)
	}
	if len(s.Payload) > 0 {
		stack = append(stack, gopacket.Payload(s.Payload))
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, stack...); err != nil {
		return nil, fmt.Errorf("serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// LinkType returns the link type of the frame Encode produces for s.
func (s *Stack) LinkType() layers.LinkType {
	if s.Ethernet == nil {
		return layers.LinkTypeRaw
	}
	return layers.LinkTypeEthernet
}
