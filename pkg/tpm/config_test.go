// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-tpm-token.
//
// go-tpm-token is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package tpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TransportDevice, cfg.Transport)
	assert.Equal(t, DefaultDevicePath, cfg.DevicePath)
	assert.Equal(t, DefaultPrimaryHandle, cfg.PrimaryHandle)
	assert.Equal(t, DefaultHandleLimit, cfg.HandleLimit)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name: "device transport with defaults",
			cfg:  Config{Transport: TransportDevice},
		},
		{
			name: "swtpm transport with defaults",
			cfg:  Config{Transport: TransportSWTPM},
		},
		{
			name: "simulator transport",
			cfg:  Config{Transport: TransportSimulator},
		},
		{
			name:        "missing transport",
			cfg:         Config{},
			expectError: true,
		},
		{
			name:        "unknown transport",
			cfg:         Config{Transport: "tcp"},
			expectError: true,
		},
		{
			name:        "primary handle below persistent range",
			cfg:         Config{Transport: TransportDevice, PrimaryHandle: 0x80000001},
			expectError: true,
		},
		{
			name:        "primary handle above persistent range",
			cfg:         Config{Transport: TransportDevice, PrimaryHandle: 0x82000000},
			expectError: true,
		},
		{
			name:        "negative handle limit",
			cfg:         Config{Transport: TransportDevice, HandleLimit: -1},
			expectError: true,
		},
		{
			name:        "swtpm port out of range",
			cfg:         Config{Transport: TransportSWTPM, SimulatorPort: 70000},
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.expectError {
				assert.ErrorIs(t, err, ErrArguments)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := Config{Transport: TransportSWTPM}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultSimulatorHost, cfg.SimulatorHost)
	assert.Equal(t, DefaultSimulatorPort, cfg.SimulatorPort)
	assert.Equal(t, DefaultPrimaryHandle, cfg.PrimaryHandle)
	assert.Equal(t, DefaultHandleLimit, cfg.HandleLimit)
}

func TestParseTCTI(t *testing.T) {
	tests := []struct {
		name        string
		tcti        string
		expectError bool
		check       func(*testing.T, *Config)
	}{
		{
			name: "empty selects default device",
			tcti: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, TransportDevice, cfg.Transport)
				assert.Equal(t, DefaultDevicePath, cfg.DevicePath)
			},
		},
		{
			name: "bare device",
			tcti: "device",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, TransportDevice, cfg.Transport)
				assert.Equal(t, DefaultDevicePath, cfg.DevicePath)
			},
		},
		{
			name: "device with path",
			tcti: "device:/dev/tpm0",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/dev/tpm0", cfg.DevicePath)
			},
		},
		{
			name: "bare swtpm",
			tcti: "swtpm",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, TransportSWTPM, cfg.Transport)
				assert.Equal(t, DefaultSimulatorHost, cfg.SimulatorHost)
				assert.Equal(t, DefaultSimulatorPort, cfg.SimulatorPort)
			},
		},
		{
			name: "swtpm with host and port",
			tcti: "swtpm:host=tpm.local,port=2400",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "tpm.local", cfg.SimulatorHost)
				assert.Equal(t, 2400, cfg.SimulatorPort)
			},
		},
		{
			name: "simulator",
			tcti: "simulator",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, TransportSimulator, cfg.Transport)
			},
		},
		{
			name:        "swtpm malformed option",
			tcti:        "swtpm:hostonly",
			expectError: true,
		},
		{
			name:        "swtpm unknown option",
			tcti:        "swtpm:socket=/tmp/sock",
			expectError: true,
		},
		{
			name:        "swtpm bad port",
			tcti:        "swtpm:port=abc",
			expectError: true,
		},
		{
			name:        "unknown transport",
			tcti:        "mssim",
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseTCTI(tc.tcti)
			if tc.expectError {
				assert.ErrorIs(t, err, ErrArguments)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "token.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"transport: swtpm\nsimulator_host: swtpm.local\nsimulator_port: 2400\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, TransportSWTPM, cfg.Transport)
	assert.Equal(t, "swtpm.local", cfg.SimulatorHost)
	assert.Equal(t, 2400, cfg.SimulatorPort)
	// unset fields keep defaults
	assert.Equal(t, DefaultPrimaryHandle, cfg.PrimaryHandle)

	rendered, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "transport: swtpm")
}

func TestLoadConfigFileRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrArguments)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("transport: [not a scalar"), 0o600))
	_, err = LoadConfigFile(bad)
	assert.ErrorIs(t, err, ErrArguments)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("transport: floppy\n"), 0o600))
	_, err = LoadConfigFile(invalid)
	assert.ErrorIs(t, err, ErrArguments)
}
