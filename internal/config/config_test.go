package config

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanalyzer/internal/mutation"
	"firestige.xyz/tanalyzer/internal/queue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  capture:
    device: eth0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, SourceLive, cfg.Capture.Source)
	assert.Equal(t, "eth0", cfg.Capture.Device)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.True(t, cfg.Capture.Promiscuous)
	assert.Equal(t, time.Second, cfg.Capture.ReadTimeout)
	assert.Equal(t, 65536, cfg.Queue.MaxDepth)
	assert.Equal(t, queue.Options{MaxDepth: 65536, DropPolicy: queue.DropTail}, cfg.Queue.Options())
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Worker.StatisticsInterval)
	assert.Equal(t, 5*time.Second, cfg.Worker.ShutdownTimeout)
	assert.True(t, cfg.Filter.IsEmpty())
	assert.False(t, cfg.Mutation.Enabled)
	assert.Equal(t, mutation.DefaultBurst, cfg.Mutation.Burst)
	assert.Nil(t, cfg.Mutation.Ethernet)
	assert.Nil(t, cfg.Mutation.TCP)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  log:
    level: DEBUG
  capture:
    source: file
    file: /tmp/trace.pcapng
  queue:
    max_depth: 128
    drop_policy: head
  worker:
    poll_interval: 100ms
    statistics_interval: 500ms
  filter:
    source_ip: " 10.0.0.1 "
    type: ipv4
  mutation:
    enabled: true
    mode: loop
    burst: 10
    ethernet:
      source: 00-11-22-33-44-55
      destination: "66:77:88:99:aa:bb"
    ipv4:
      source: 192.168.1.1
      destination: 192.168.1.2
      ttl: 32
    tcp:
      source_port: 1234
      destination_port: 80
      window: 1024
      seq: 4294967295
      ack: 7
      payload: AA-BB-CC
  metrics:
    enabled: true
    listen: 127.0.0.1:9999
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, SourceFile, cfg.Capture.Source)
	assert.Equal(t, queue.Options{MaxDepth: 128, DropPolicy: queue.DropHead}, cfg.Queue.Options())
	assert.Equal(t, 100*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, MinStatisticsInterval, cfg.Worker.StatisticsInterval, "clamped to the floor")
	assert.Equal(t, "10.0.0.1", cfg.Filter.SourceIP)
	assert.Equal(t, "ipv4", cfg.Filter.Type)
	assert.Equal(t, 10, cfg.Mutation.Burst)

	tmpl, err := cfg.Mutation.Template()
	require.NoError(t, err)
	require.NotNil(t, tmpl.Ethernet)
	assert.Equal(t, net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}, tmpl.Ethernet.Src)
	assert.Equal(t, net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}, tmpl.Ethernet.Dst)
	require.NotNil(t, tmpl.IPv4)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), tmpl.IPv4.Src)
	assert.Equal(t, uint8(32), tmpl.IPv4.TTL)
	require.NotNil(t, tmpl.TCP)
	assert.Equal(t, uint16(1234), tmpl.TCP.SrcPort)
	assert.Equal(t, uint16(1024), tmpl.TCP.Window)
	assert.Equal(t, uint32(0xffffffff), tmpl.TCP.Seq)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, tmpl.TCP.Payload)
	assert.Nil(t, tmpl.UDP)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  capture:
    device: eth0
`)
	t.Setenv("ANALYZER_CAPTURE_DEVICE", "eth9")
	t.Setenv("ANALYZER_QUEUE_DROP_POLICY", "head")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "eth9", cfg.Capture.Device)
	assert.Equal(t, "head", cfg.Queue.DropPolicy)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("ANALYZER_CAPTURE_DEVICE", "lo")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "lo", cfg.Capture.Device)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"log level": `
analyzer:
  log: {level: loud}
  capture: {device: eth0}
`,
		"source": `
analyzer:
  capture: {source: usb, device: eth0}
`,
		"missing device": `
analyzer:
  capture: {source: afpacket}
`,
		"missing file": `
analyzer:
  capture: {source: file}
`,
		"snap len": `
analyzer:
  capture: {device: eth0, snap_len: -1}
`,
		"drop policy": `
analyzer:
  capture: {device: eth0}
  queue: {drop_policy: middle}
`,
		"mutation mode": `
analyzer:
  capture: {device: eth0}
  mutation: {mode: sometimes}
`,
		"mutation template": `
analyzer:
  capture: {device: eth0}
  mutation:
    enabled: true
    ethernet: {source: "zz:11:22:33:44:55", destination: "00:11:22:33:44:55"}
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestTemplateErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  MutationConfig
		want string
	}{
		{
			name: "short mac",
			cfg:  MutationConfig{Ethernet: &EthernetFields{Source: "00:11:22", Destination: "00:11:22:33:44:55"}},
			want: "mutation.ethernet.source",
		},
		{
			name: "ipv6 address",
			cfg:  MutationConfig{IPv4: &IPv4Fields{Source: "10.0.0.1", Destination: "::1"}},
			want: "mutation.ipv4.destination",
		},
		{
			name: "ttl",
			cfg:  MutationConfig{IPv4: &IPv4Fields{Source: "10.0.0.1", Destination: "10.0.0.2", TTL: 300}},
			want: "mutation.ipv4.ttl",
		},
		{
			name: "port",
			cfg: MutationConfig{
				IPv4: &IPv4Fields{Source: "10.0.0.1", Destination: "10.0.0.2"},
				UDP:  &UDPFields{SourcePort: 70000},
			},
			want: "mutation.udp.source_port",
		},
		{
			name: "payload",
			cfg: MutationConfig{
				IPv4: &IPv4Fields{Source: "10.0.0.1", Destination: "10.0.0.2"},
				TCP:  &TCPFields{Payload: "AA-B"},
			},
			want: "mutation.tcp.payload",
		},
		{
			name: "transport without ipv4",
			cfg:  MutationConfig{TCP: &TCPFields{SourcePort: 1}},
			want: "ipv4 group",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.Template()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTemplateDefaultTTL(t *testing.T) {
	tmpl, err := MutationConfig{IPv4: &IPv4Fields{Source: "10.0.0.1", Destination: "10.0.0.2"}}.Template()
	require.NoError(t, err)
	assert.Equal(t, uint8(64), tmpl.IPv4.TTL)
}

func TestParsePayload(t *testing.T) {
	for in, want := range map[string][]byte{
		"":           nil,
		"AABBCC":     {0xaa, 0xbb, 0xcc},
		"aa-bb-cc":   {0xaa, 0xbb, 0xcc},
		"AA:BB":      {0xaa, 0xbb},
		" 01 02 03 ": {0x01, 0x02, 0x03},
	} {
		got, err := ParsePayload(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePayload("XYZ")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	e := mutation.NewEngine(mutation.Options{})

	m := MutationConfig{Enabled: true, Mode: "one-shot"}
	require.NoError(t, m.Apply(e))
	assert.True(t, e.Armed())

	m.Enabled = false
	require.NoError(t, m.Apply(e))
	assert.False(t, e.Armed())

	m = MutationConfig{Enabled: true, Mode: "bogus"}
	assert.Error(t, m.Apply(e))
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, `
analyzer:
  capture: {device: eth0}
  filter: {type: arp}
`)
	var latest atomic.Pointer[Config]
	cfg, err := Watch(path, func(c *Config) { latest.Store(c) })
	require.NoError(t, err)
	assert.Equal(t, "arp", cfg.Filter.Type)

	require.NoError(t, os.WriteFile(path, []byte(`
analyzer:
  capture: {device: eth0}
  filter: {type: ipv4}
`), 0o644))

	require.Eventually(t, func() bool {
		c := latest.Load()
		return c != nil && c.Filter.Type == "ipv4"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchRequiresFile(t *testing.T) {
	_, err := Watch("", func(*Config) {})
	assert.Error(t, err)
}
