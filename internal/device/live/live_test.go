package live

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/stretchr/testify/assert"

	"firestige.xyz/tanalyzer/internal/device"
)

var _ device.Device = (*Device)(nil)

func TestUnopenedDevice(t *testing.T) {
	d := New(Config{Interface: "eth-test"})

	assert.Equal(t, "eth-test", d.Name())
	assert.Equal(t, layers.LinkTypeEthernet, d.LinkType())
	assert.ErrorIs(t, d.Start(), device.ErrNotOpen)
	assert.ErrorIs(t, d.Transmit([]byte{1}), device.ErrNotOpen)
	_, err := d.Statistics()
	assert.ErrorIs(t, err, device.ErrNotOpen)
	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Close())
}

func TestFromPcap(t *testing.T) {
	got := fromPcap([]pcap.Interface{
		{
			Name:        "eth0",
			Description: "uplink",
			Addresses: []pcap.InterfaceAddress{
				{IP: net.IPv4(10, 0, 0, 5), Netmask: net.CIDRMask(24, 32)},
				{IP: net.ParseIP("fe80::1")},
				{},
			},
		},
		{Name: "lo"},
	})

	assert.Equal(t, []Interface{
		{Name: "eth0", Description: "uplink", Addresses: []string{"10.0.0.5/24", "fe80::1"}},
		{Name: "lo"},
	}, got)
}
