// Package filter decides which decoded packets reach the display sink.
package filter

import (
	"strings"
	"sync/atomic"

	"firestige.xyz/tanalyzer/internal/core"
)

// Criteria holds the three optional text criteria. An empty criterion
// matches everything.
type Criteria struct {
	SourceIP      string `mapstructure:"source_ip" yaml:"source_ip"`
	DestinationIP string `mapstructure:"destination_ip" yaml:"destination_ip"`
	Type          string `mapstructure:"type" yaml:"type"`
}

// Normalize trims surrounding spaces from every criterion.
func (c Criteria) Normalize() Criteria {
	return Criteria{
		SourceIP:      strings.TrimSpace(c.SourceIP),
		DestinationIP: strings.TrimSpace(c.DestinationIP),
		Type:          strings.TrimSpace(c.Type),
	}
}

// IsEmpty reports whether no criterion is set.
func (c Criteria) IsEmpty() bool {
	n := c.Normalize()
	return n.SourceIP == "" && n.DestinationIP == "" && n.Type == ""
}

// Matches is the logical AND of every non-empty criterion. IP criteria are
// case-sensitive substrings of the textual address, Type is a
// case-insensitive substring of the EtherType name. A criterion whose
// packet field is absent does not match.
func Matches(c Criteria, p core.DecodedPacket) bool {
	c = c.Normalize()

	if c.SourceIP != "" {
		if !p.SrcIP.IsValid() || !strings.Contains(p.SrcIP.String(), c.SourceIP) {
			return false
		}
	}
	if c.DestinationIP != "" {
		if !p.DstIP.IsValid() || !strings.Contains(p.DstIP.String(), c.DestinationIP) {
			return false
		}
	}
	if c.Type != "" {
		t := p.Type()
		if t == "" || !strings.Contains(strings.ToLower(t), strings.ToLower(c.Type)) {
			return false
		}
	}
	return true
}

// Holder publishes criteria to concurrent readers. Updates are seen by the
// next evaluation.
type Holder struct {
	current atomic.Pointer[Criteria]
}

func NewHolder(c Criteria) *Holder {
	h := &Holder{}
	h.Set(c)
	return h
}

func (h *Holder) Set(c Criteria) {
	n := c.Normalize()
	h.current.Store(&n)
}

func (h *Holder) Get() Criteria {
	if c := h.current.Load(); c != nil {
		return *c
	}
	return Criteria{}
}

// Matches evaluates p against the current criteria.
func (h *Holder) Matches(p core.DecodedPacket) bool {
	return Matches(h.Get(), p)
}
