package daemon

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanalyzer/internal/codec/codectest"
	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/core"
)

func writeTrace(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	frames := [][]byte{
		codectest.TCPFrame("10.0.0.1", "10.0.0.2", 40000, 80, []byte("GET /")),
		codectest.UDPFrame("10.0.0.3", "10.0.0.4", 5353, 53, []byte{0x01}),
		codectest.ARPFrame(),
	}
	for i, data := range frames {
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func fileConfig(trace, extra string) string {
	return `
analyzer:
  capture:
    source: file
    file: ` + trace + `
  worker:
    poll_interval: 10ms
` + extra
}

func packetLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "#") {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestDaemon_ReplayFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fileConfig(writeTrace(t, dir), ""))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	d, err := New(cfg, path, &out)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after the trace was replayed")
	}

	lines := packetLines(out.String())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "10.0.0.1:40000 -> 10.0.0.2:80 TCP")
	assert.Contains(t, lines[1], "UDP")
	assert.Contains(t, lines[2], "ARP")
	assert.Contains(t, out.String(), "Received packets:")
	assert.Equal(t, uint64(3), d.Session().Worker().Stats().Published)
}

func TestDaemon_FilterFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fileConfig(writeTrace(t, dir), `
  filter:
    type: arp
`))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	var out bytes.Buffer
	d, err := New(cfg, "", &out)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	require.NoError(t, d.Run())

	lines := packetLines(out.String())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "ARP")
}

func TestDaemon_Reload(t *testing.T) {
	dir := t.TempDir()
	trace := writeTrace(t, dir)
	path := writeConfig(t, dir, fileConfig(trace, ""))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	d, err := New(cfg, path, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()
	assert.False(t, d.Session().Engine().Armed())

	// The watched file stays untouched so only Reload applies the edit.
	d.configPath = writeConfig(t, t.TempDir(), fileConfig(trace, `
  queue:
    max_depth: 16
  filter:
    source_ip: 10.0.0.1
  mutation:
    enabled: true
    mode: one-shot
`))
	require.NoError(t, d.Reload())

	assert.Equal(t, "10.0.0.1", d.Session().Filter().Get().SourceIP)
	assert.True(t, d.Session().Engine().Armed())
	assert.Equal(t, 16, d.Config().Queue.MaxDepth)
}

func TestDaemon_ReloadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	trace := writeTrace(t, dir)
	path := writeConfig(t, dir, fileConfig(trace, `
  filter:
    type: tcp
`))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	d, err := New(cfg, path, nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	defer d.Stop()

	d.configPath = writeConfig(t, t.TempDir(), fileConfig(trace, `
  queue:
    drop_policy: sideways
`))
	assert.Error(t, d.Reload())
	assert.Equal(t, "tcp", d.Session().Filter().Get().Type)
}

func TestDaemon_MetricsAndMutation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fileConfig(writeTrace(t, dir), `
  mutation:
    enabled: true
    mode: loop
    burst: 2
  metrics:
    enabled: true
    listen: 127.0.0.1:0
`))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	d, err := New(cfg, "", nil)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	require.NotNil(t, d.metricsServer)
	assert.True(t, d.Session().Engine().Armed())
	assert.Equal(t, 2, d.Session().Engine().Burst())

	require.NoError(t, d.Run())
	// Files cannot transmit, so every burst fails and is counted.
	assert.Positive(t, d.Session().Engine().Failures())
	assert.Zero(t, d.Session().Engine().Transmitted())
}

func TestDaemon_StartFailsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fileConfig(filepath.Join(dir, "absent.pcap"), ""))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	d, err := New(cfg, "", nil)
	require.NoError(t, err)
	err = d.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceFailure)
}

func TestNewDevice(t *testing.T) {
	dev, err := newDevice(config.CaptureConfig{Source: config.SourceFile, File: "x.pcap"})
	require.NoError(t, err)
	assert.Equal(t, "x.pcap", dev.Name())

	dev, err = newDevice(config.CaptureConfig{Source: config.SourceLive, Device: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, "eth0", dev.Name())

	_, err = newDevice(config.CaptureConfig{Source: "usb"})
	assert.Error(t, err)
}
