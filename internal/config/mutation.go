package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"firestige.xyz/tanalyzer/internal/mutation"
)

// MutationConfig arms the injection engine. Layer groups are text forms
// of mutation.Template overrides; an absent group is not applied.
type MutationConfig struct {
	Enabled  bool            `mapstructure:"enabled" yaml:"enabled"`
	Mode     string          `mapstructure:"mode" yaml:"mode"` // loop | one-shot
	Burst    int             `mapstructure:"burst" yaml:"burst"`
	Ethernet *EthernetFields `mapstructure:"ethernet" yaml:"ethernet,omitempty"`
	IPv4     *IPv4Fields     `mapstructure:"ipv4" yaml:"ipv4,omitempty"`
	TCP      *TCPFields      `mapstructure:"tcp" yaml:"tcp,omitempty"`
	UDP      *UDPFields      `mapstructure:"udp" yaml:"udp,omitempty"`
}

type EthernetFields struct {
	Source      string `mapstructure:"source" yaml:"source"`
	Destination string `mapstructure:"destination" yaml:"destination"`
}

type IPv4Fields struct {
	Source      string `mapstructure:"source" yaml:"source"`
	Destination string `mapstructure:"destination" yaml:"destination"`
	TTL         int    `mapstructure:"ttl" yaml:"ttl"`
}

type TCPFields struct {
	SourcePort      int    `mapstructure:"source_port" yaml:"source_port"`
	DestinationPort int    `mapstructure:"destination_port" yaml:"destination_port"`
	Window          int    `mapstructure:"window" yaml:"window"`
	Seq             int64  `mapstructure:"seq" yaml:"seq"`
	Ack             int64  `mapstructure:"ack" yaml:"ack"`
	Payload         string `mapstructure:"payload" yaml:"payload"` // hex, "AA-BB-CC" or "AABBCC"
}

type UDPFields struct {
	SourcePort      int `mapstructure:"source_port" yaml:"source_port"`
	DestinationPort int `mapstructure:"destination_port" yaml:"destination_port"`
}

// Template parses the text overrides into an engine template.
func (m MutationConfig) Template() (mutation.Template, error) {
	var t mutation.Template

	if e := m.Ethernet; e != nil {
		src, err := parseMAC(e.Source)
		if err != nil {
			return t, fmt.Errorf("mutation.ethernet.source: %w", err)
		}
		dst, err := parseMAC(e.Destination)
		if err != nil {
			return t, fmt.Errorf("mutation.ethernet.destination: %w", err)
		}
		t.Ethernet = &mutation.EthernetOverride{Src: src, Dst: dst}
	}

	if ip := m.IPv4; ip != nil {
		src, err := parseIPv4(ip.Source)
		if err != nil {
			return t, fmt.Errorf("mutation.ipv4.source: %w", err)
		}
		dst, err := parseIPv4(ip.Destination)
		if err != nil {
			return t, fmt.Errorf("mutation.ipv4.destination: %w", err)
		}
		ttl := ip.TTL
		if ttl == 0 {
			ttl = 64
		}
		if ttl < 1 || ttl > 255 {
			return t, fmt.Errorf("mutation.ipv4.ttl out of range: %d", ip.TTL)
		}
		t.IPv4 = &mutation.IPv4Override{Src: src, Dst: dst, TTL: uint8(ttl)}
	}

	if tcp := m.TCP; tcp != nil {
		o := &mutation.TCPOverride{}
		var err error
		if o.SrcPort, err = parseUint16(tcp.SourcePort); err != nil {
			return t, fmt.Errorf("mutation.tcp.source_port: %w", err)
		}
		if o.DstPort, err = parseUint16(tcp.DestinationPort); err != nil {
			return t, fmt.Errorf("mutation.tcp.destination_port: %w", err)
		}
		if o.Window, err = parseUint16(tcp.Window); err != nil {
			return t, fmt.Errorf("mutation.tcp.window: %w", err)
		}
		if o.Seq, err = parseUint32(tcp.Seq); err != nil {
			return t, fmt.Errorf("mutation.tcp.seq: %w", err)
		}
		if o.Ack, err = parseUint32(tcp.Ack); err != nil {
			return t, fmt.Errorf("mutation.tcp.ack: %w", err)
		}
		if o.Payload, err = ParsePayload(tcp.Payload); err != nil {
			return t, fmt.Errorf("mutation.tcp.payload: %w", err)
		}
		t.TCP = o
	}

	if udp := m.UDP; udp != nil {
		o := &mutation.UDPOverride{}
		var err error
		if o.SrcPort, err = parseUint16(udp.SourcePort); err != nil {
			return t, fmt.Errorf("mutation.udp.source_port: %w", err)
		}
		if o.DstPort, err = parseUint16(udp.DestinationPort); err != nil {
			return t, fmt.Errorf("mutation.udp.destination_port: %w", err)
		}
		t.UDP = o
	}

	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("mutation: %w", err)
	}
	return t, nil
}

// parseMAC accepts six octets separated by '-' or ':'.
func parseMAC(s string) (net.HardwareAddr, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", ":")
	if s == "" {
		return nil, fmt.Errorf("missing MAC address")
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q", s)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("invalid MAC address %q: want 6 octets", s)
	}
	return mac, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, fmt.Errorf("missing IPv4 address")
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	return addr, nil
}

func parseUint16(v int) (uint16, error) {
	if v < 0 || v > 0xffff {
		return 0, fmt.Errorf("value %d out of range 0-65535", v)
	}
	return uint16(v), nil
}

func parseUint32(v int64) (uint32, error) {
	if v < 0 || v > 0xffffffff {
		return 0, fmt.Errorf("value %d out of range 0-4294967295", v)
	}
	return uint32(v), nil
}

// ParsePayload decodes hex bytes written as "AA-BB-CC", "AA:BB:CC",
// "AA BB CC" or "AABBCC". Empty input yields no payload.
func ParsePayload(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "", ":", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}

// Apply arms the engine from the section, or disarms it when mutation is
// disabled.
func (m MutationConfig) Apply(e *mutation.Engine) error {
	if !m.Enabled {
		e.Disarm()
		return nil
	}
	mode, err := mutation.ParseMode(m.Mode)
	if err != nil {
		return err
	}
	t, err := m.Template()
	if err != nil {
		return err
	}
	return e.Arm(t, mode)
}
