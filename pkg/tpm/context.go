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

// Package tpm implements the hardware-backed key management core for a
// PKCS#11-style security token. It bridges the token's stateless,
// attribute-based object model with a TPM 2.0 root of trust that speaks
// in transient numeric handles, sealed opaque blobs and authorization
// values.
//
// A Context owns the transport connection, the transient handle
// registry and at most one authorization session. A single Context is
// NOT safe for concurrent use: the caller must serialize every
// operation on it, including Close, behind an external lock. The Guard
// type makes that contract a first-class part of the API. Two contexts
// backed by independent transports may be used concurrently.
package tpm

import (
	"fmt"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"github.com/jeremyhahn/go-tpm-token/pkg/logging"
)

// Handle is a transient or persistent reference to an object resident
// in the hardware module. Not durable across power cycles.
type Handle = tpm2.TPMHandle

// Context is the hardware context all token operations run through.
type Context struct {
	config    *Config
	logger    *logging.Logger
	shared    *sharedTransport
	transport transport.TPM

	// handles tracks every transient handle this context has loaded
	// and not yet flushed, to detect leaks and double-flushes.
	handles map[Handle]struct{}

	// session is the single active authorization session, nil when
	// none is active.
	session       tpm2.Session
	sessionCloser func() error

	// activeOp is the single in-flight stateful crypto operation, nil
	// when none is active.
	activeOp *Operation

	closed bool
}

// Open creates a hardware context using the provided configuration.
// Fails with ErrInit when the transport cannot be reached.
func Open(cfg *Config, logger *logging.Logger) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger(cfg.Debug)
	}

	tpmConn, err := openTransport(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debugf("tpm: opened %s transport", cfg.Transport)

	return &Context{
		config:    cfg,
		logger:    logger,
		shared:    newSharedTransport(tpmConn),
		transport: tpmConn,
		handles:   make(map[Handle]struct{}),
	}, nil
}

// OpenTCTI creates a hardware context from a TCTI-style transport
// selection string (see ParseTCTI). The string is typically sourced
// from an environment variable by the caller and forwarded opaquely.
func OpenTCTI(tcti string, logger *logging.Logger) (*Context, error) {
	cfg, err := ParseTCTI(tcti)
	if err != nil {
		return nil, err
	}
	return Open(cfg, logger)
}

// Share returns a second context backed by the same transport
// connection. The connection is refcounted and destroyed only when the
// last sharing context is closed. The new context has its own handle
// registry and session slot.
func (c *Context) Share() (*Context, error) {
	if c.closed {
		return nil, ErrClosed
	}
	c.shared.acquire()
	return &Context{
		config:    c.config,
		logger:    c.logger,
		shared:    c.shared,
		transport: c.transport,
		handles:   make(map[Handle]struct{}),
	}, nil
}

// Config returns the context configuration.
func (c *Context) Config() *Config {
	return c.config
}

// Transport returns the underlying hardware transport for callers that
// need to issue commands directly (tests, diagnostics).
func (c *Context) Transport() transport.TPM {
	return c.transport
}

// Close flushes all registered handles, stops any active session,
// releases this context's transport reference and destroys the
// connection when the refcount reaches zero.
//
// NOT safe to call concurrently with any other operation on the same
// context; callers must externally serialize access (see Guard).
func (c *Context) Close() error {
	if c.closed {
		return ErrClosed
	}

	c.activeOp.destroy()
	c.closed = true

	c.FlushAll()

	if c.session != nil {
		if err := c.stopSessionLocked(); err != nil {
			c.logger.Errorf("tpm: failed to stop session on close: %v", err)
		}
	}

	_, err := c.shared.release()
	return err
}

// RegisterHandle adds a transient handle to the context's tracked set.
// Fails with ErrHandleTableFull when the tracking limit is exceeded and
// ErrArguments when the handle is already registered.
func (c *Context) RegisterHandle(h Handle) error {
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.handles[h]; ok {
		return fmt.Errorf("%w: handle 0x%x already registered", ErrArguments, uint32(h))
	}
	if len(c.handles) >= c.config.HandleLimit {
		return fmt.Errorf("%w: %d handles registered", ErrHandleTableFull, len(c.handles))
	}
	c.handles[h] = struct{}{}
	return nil
}

// FlushHandle releases a transient handle back to the hardware's free
// pool and removes it from the tracked set. Flushing a handle this
// context is not tracking fails with ErrHandleNotRegistered.
func (c *Context) FlushHandle(h Handle) error {
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.handles[h]; !ok {
		return fmt.Errorf("%w: 0x%x", ErrHandleNotRegistered, uint32(h))
	}
	delete(c.handles, h)

	if _, err := (tpm2.FlushContext{FlushHandle: h}).Execute(c.transport); err != nil {
		return classify("TPM2_FlushContext", err)
	}
	return nil
}

// FlushAll releases every tracked handle. Intended for shutdown paths:
// failures are logged, never fatal to the caller, so cleanup always
// runs to completion.
func (c *Context) FlushAll() {
	for h := range c.handles {
		delete(c.handles, h)
		if _, err := (tpm2.FlushContext{FlushHandle: h}).Execute(c.transport); err != nil {
			c.logger.Errorf("tpm: failed to flush handle 0x%x: %v", uint32(h), err)
		}
	}
}

// HandleCount returns the number of transient handles currently
// registered. After any sequence of operations this equals successful
// loads/generations minus successful flushes.
func (c *Context) HandleCount() int {
	return len(c.handles)
}

// readHandle reads the public area and name of a resident object.
func (c *Context) readHandle(h Handle) (tpm2.TPM2BName, *tpm2.TPMTPublic, error) {
	rsp, err := tpm2.ReadPublic{ObjectHandle: h}.Execute(c.transport)
	if err != nil {
		return tpm2.TPM2BName{}, nil, classify("TPM2_ReadPublic", err)
	}
	pub, err := rsp.OutPublic.Contents()
	if err != nil {
		return tpm2.TPM2BName{}, nil, fmt.Errorf("%w: public area: %s", ErrBlobFormat, err)
	}
	return rsp.Name, pub, nil
}
