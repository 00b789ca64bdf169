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
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default transport and provisioning parameters.
const (
	DefaultDevicePath    = "/dev/tpmrm0"
	DefaultSimulatorHost = "localhost"
	DefaultSimulatorPort = 2321

	// DefaultPrimaryHandle is the persistent handle the primary storage
	// key is evicted to. Must be in the persistent range
	// 0x81000000 - 0x81FFFFFF.
	DefaultPrimaryHandle = uint32(0x81000001)

	// DefaultHandleLimit caps the number of transient handles a single
	// context tracks before Load/Generate fail with ErrHandleTableFull.
	DefaultHandleLimit = 256
)

// Transport kinds accepted in a TCTI-style selection string.
const (
	TransportDevice    = "device"
	TransportSWTPM     = "swtpm"
	TransportSimulator = "simulator"
)

// Config contains configuration parameters for opening a hardware
// context. The zero value is not valid; use DefaultConfig or fill in
// and call Validate.
type Config struct {
	// Transport selects the transport kind: "device", "swtpm" or
	// "simulator" (embedded, for testing).
	Transport string `json:"transport" yaml:"transport"`

	// DevicePath is the TPM character device when Transport is
	// "device". Common values: /dev/tpmrm0, /dev/tpm0.
	DevicePath string `json:"device_path,omitempty" yaml:"device_path,omitempty"`

	// SimulatorHost and SimulatorPort locate a SWTPM command port when
	// Transport is "swtpm". The platform (ctrl) port is port+1.
	SimulatorHost string `json:"simulator_host,omitempty" yaml:"simulator_host,omitempty"`
	SimulatorPort int    `json:"simulator_port,omitempty" yaml:"simulator_port,omitempty"`

	// PrimaryHandle is the persistent handle of the primary storage key
	// anchoring all wrapped objects.
	PrimaryHandle uint32 `json:"primary_handle" yaml:"primary_handle"`

	// HandleLimit caps the transient handle tracking table.
	HandleLimit int `json:"handle_limit,omitempty" yaml:"handle_limit,omitempty"`

	// EncryptSessions enables AES-128 CFB parameter encryption on
	// authorization sessions, protecting secrets on the TPM bus.
	EncryptSessions bool `json:"encrypt_sessions" yaml:"encrypt_sessions"`

	// Debug enables debug logging.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config for the default hardware device.
func DefaultConfig() *Config {
	return &Config{
		Transport:     TransportDevice,
		DevicePath:    DefaultDevicePath,
		PrimaryHandle: DefaultPrimaryHandle,
		HandleLimit:   DefaultHandleLimit,
	}
}

// Validate checks the configuration, filling in defaults for optional
// fields.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportDevice:
		if c.DevicePath == "" {
			c.DevicePath = DefaultDevicePath
		}
	case TransportSWTPM:
		if c.SimulatorHost == "" {
			c.SimulatorHost = DefaultSimulatorHost
		}
		if c.SimulatorPort == 0 {
			c.SimulatorPort = DefaultSimulatorPort
		}
		if c.SimulatorPort < 1 || c.SimulatorPort > 65534 {
			return fmt.Errorf("%w: invalid simulator port %d", ErrArguments, c.SimulatorPort)
		}
	case TransportSimulator:
	case "":
		return fmt.Errorf("%w: transport is required", ErrArguments)
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrArguments, c.Transport)
	}
	if c.PrimaryHandle == 0 {
		c.PrimaryHandle = DefaultPrimaryHandle
	}
	if c.PrimaryHandle < 0x81000000 || c.PrimaryHandle > 0x81FFFFFF {
		return fmt.Errorf("%w: primary handle 0x%x outside persistent range", ErrArguments, c.PrimaryHandle)
	}
	if c.HandleLimit == 0 {
		c.HandleLimit = DefaultHandleLimit
	}
	if c.HandleLimit < 1 {
		return fmt.Errorf("%w: handle limit must be positive", ErrArguments)
	}
	return nil
}

// ParseTCTI builds a Config from a TCTI-style transport selection
// string, typically sourced from an environment variable. The string is
// of the form "kind" or "kind:options":
//
//	device[:/dev/path]
//	swtpm[:host=HOST,port=PORT]
//	simulator
//
// An empty string selects the default device transport.
func ParseTCTI(tcti string) (*Config, error) {
	cfg := DefaultConfig()
	if tcti == "" {
		return cfg, nil
	}

	kind, opts, _ := strings.Cut(tcti, ":")
	switch kind {
	case TransportDevice:
		cfg.Transport = TransportDevice
		if opts != "" {
			cfg.DevicePath = opts
		}
	case TransportSWTPM:
		cfg.Transport = TransportSWTPM
		cfg.SimulatorHost = DefaultSimulatorHost
		cfg.SimulatorPort = DefaultSimulatorPort
		if opts != "" {
			for _, kv := range strings.Split(opts, ",") {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					return nil, fmt.Errorf("%w: malformed swtpm option %q", ErrArguments, kv)
				}
				switch key {
				case "host":
					cfg.SimulatorHost = value
				case "port":
					port, err := strconv.Atoi(value)
					if err != nil {
						return nil, fmt.Errorf("%w: malformed swtpm port %q", ErrArguments, value)
					}
					cfg.SimulatorPort = port
				default:
					return nil, fmt.Errorf("%w: unknown swtpm option %q", ErrArguments, key)
				}
			}
		}
	case TransportSimulator:
		cfg.Transport = TransportSimulator
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrArguments, kind)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file, filling unset fields
// with defaults and validating the result.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %s", ErrArguments, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %s", ErrArguments, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}
