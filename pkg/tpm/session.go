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
	"github.com/google/go-tpm/tpm2"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// StartSession starts the context's single HMAC authorization session.
// When parameter encryption is enabled in the configuration the session
// also encrypts the TPM bus using AES-128 CFB. Starting a second
// session while one is active fails with ErrSessionActive.
func (c *Context) StartSession(auth *secret.Buffer) error {
	if c.closed {
		return ErrClosed
	}
	if c.session != nil {
		return ErrSessionActive
	}

	opts := []tpm2.AuthOption{tpm2.Auth(auth.Bytes())}
	if c.config.EncryptSessions {
		c.logger.Debug("tpm: starting encrypted HMAC authorization session")
		opts = append(opts, tpm2.AESEncryption(128, tpm2.EncryptInOut))
	} else {
		c.logger.Debug("tpm: starting HMAC authorization session")
	}

	session, closer, err := tpm2.HMACSession(
		c.transport,
		tpm2.TPMAlgSHA256,
		16,
		opts...)
	if err != nil {
		return classify("TPM2_StartAuthSession", err)
	}

	c.session = session
	c.sessionCloser = closer
	return nil
}

// StopSession stops the active authorization session. Fails with
// ErrNoSession when none is active.
func (c *Context) StopSession() error {
	if c.closed {
		return ErrClosed
	}
	if c.session == nil {
		return ErrNoSession
	}
	return c.stopSessionLocked()
}

func (c *Context) stopSessionLocked() error {
	closer := c.sessionCloser
	c.session = nil
	c.sessionCloser = nil
	if closer == nil {
		return nil
	}
	if err := closer(); err != nil {
		return classify("TPM2_FlushContext", err)
	}
	return nil
}

// SessionActive reports whether an authorization session is active.
func (c *Context) SessionActive() bool {
	return c.session != nil
}

// authSession returns the session to authorize a command that presents
// the given auth value: the active HMAC session when one has been
// started, otherwise a plain password session. The auth value is used
// for this call only and never cached by the context.
func (c *Context) authSession(auth *secret.Buffer) tpm2.Session {
	if c.session != nil {
		return c.session
	}
	return tpm2.PasswordAuth(auth.Bytes())
}
