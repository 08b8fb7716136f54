package live

import (
	"fmt"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/tanalyzer/internal/core"
)

// Interface describes a capture-capable interface.
type Interface struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Addresses   []string `yaml:"addresses,omitempty" json:"addresses,omitempty"`
}

// List returns the interfaces libpcap can open.
func List() ([]Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: list interfaces: %w", core.ErrDeviceFailure, err)
	}
	return fromPcap(devs), nil
}

func fromPcap(devs []pcap.Interface) []Interface {
	out := make([]Interface, 0, len(devs))
	for _, d := range devs {
		i := Interface{Name: d.Name, Description: d.Description}
		for _, a := range d.Addresses {
			if a.IP == nil {
				continue
			}
			addr := a.IP.String()
			if a.Netmask != nil {
				ones, _ := a.Netmask.Size()
				addr = fmt.Sprintf("%s/%d", addr, ones)
			}
			i.Addresses = append(i.Addresses, addr)
		}
		out = append(out, i)
	}
	return out
}
