package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanalyzer/internal/device/live"
)

func TestRunDevices(t *testing.T) {
	list := func() ([]live.Interface, error) {
		return []live.Interface{
			{Name: "eth0", Description: "uplink", Addresses: []string{"10.0.0.5/24", "fe80::1/64"}},
			{Name: "lo"},
		}, nil
	}

	var buf bytes.Buffer
	require.NoError(t, runDevices(&buf, list))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "10.0.0.5/24,fe80::1/64")
	assert.Contains(t, out, "uplink")
	assert.Regexp(t, `lo\s+-\s+-`, out)
}

func TestRunDevices_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runDevices(&buf, func() ([]live.Interface, error) { return nil, nil }))
	assert.Contains(t, buf.String(), "no capture interfaces")
}

func TestRunDevices_Error(t *testing.T) {
	var buf bytes.Buffer
	err := runDevices(&buf, func() ([]live.Interface, error) { return nil, errors.New("permission denied") })
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestRunValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
analyzer:
  capture:
    device: eth0
  filter:
    type: arp
`), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runValidate(path, &buf))
	out := buf.String()
	assert.Contains(t, out, "# VALID: "+path)
	assert.Contains(t, out, "device: eth0")
	assert.Contains(t, out, "type: arp")
	assert.Contains(t, out, "drop_policy: tail")
}

func TestRunValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
analyzer:
  capture:
    source: floppy
`), 0o644))

	var buf bytes.Buffer
	err := runValidate(path, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID")
	assert.Empty(t, buf.String())
}

func TestCaptureBindingsMatchFlags(t *testing.T) {
	for key, name := range captureBindings {
		assert.NotNil(t, captureCmd.Flags().Lookup(name), "flag for %s", key)
	}
}
