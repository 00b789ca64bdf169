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
	"sync"

	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"
)

// sharedTransport is a refcounted hardware connection. A transport is
// shared only at open/close granularity: contexts created by Share hold
// a reference, and the underlying connection is closed when the last
// reference is released.
type sharedTransport struct {
	tpm  transport.TPMCloser
	mu   sync.Mutex
	refs int
}

func newSharedTransport(tpm transport.TPMCloser) *sharedTransport {
	return &sharedTransport{tpm: tpm, refs: 1}
}

func (s *sharedTransport) acquire() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

// release decrements the refcount, closing the connection when it
// reaches zero. Reports whether the connection was closed.
func (s *sharedTransport) release() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs--
	if s.refs > 0 {
		return false, nil
	}
	if err := s.tpm.Close(); err != nil {
		return true, fmt.Errorf("%w: close transport: %s", ErrDevice, err)
	}
	return true, nil
}

// openTransport opens the hardware connection selected by cfg.
// cfg must already be validated.
func openTransport(cfg *Config) (transport.TPMCloser, error) {
	switch cfg.Transport {
	case TransportDevice:
		tpm, err := transport.OpenTPM(cfg.DevicePath)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %s", ErrInit, cfg.DevicePath, err)
		}
		return tpm, nil

	case TransportSWTPM:
		// SWTPM exposes the command port and a platform (ctrl) port on
		// the next port up. Startup is handled by swtpm itself when
		// started with --flags startup-clear.
		cmdAddr := fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort)
		platAddr := fmt.Sprintf("%s:%d", cfg.SimulatorHost, cfg.SimulatorPort+1)
		tpm, err := tcp.Open(tcp.Config{
			CommandAddress:  cmdAddr,
			PlatformAddress: platAddr,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: connect swtpm %s: %s", ErrInit, cmdAddr, err)
		}
		return tpm, nil

	case TransportSimulator:
		return openSimulator()

	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInit, cfg.Transport)
	}
}
