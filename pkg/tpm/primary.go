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

	"github.com/google/go-tpm/tpm2"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// GetExistingPrimary retrieves the provisioned primary key from its
// persistent handle. Fails with ErrPrimaryNotFound when no primary has
// been provisioned on this hardware; any other failure (a broken
// transport, a device fault) keeps its own classification so callers
// can tell an unprovisioned token from a dead one. The returned blob is
// the handle blob the caller persists alongside token metadata; losing
// one while the other survives is an unrecoverable inconsistency and is
// surfaced as such by DeserializeHandle, never silently repaired.
func (c *Context) GetExistingPrimary() (Handle, *secret.Buffer, error) {
	if c.closed {
		return 0, nil, ErrClosed
	}

	h := Handle(c.config.PrimaryHandle)
	if _, err := (tpm2.ReadPublic{ObjectHandle: h}.Execute(c.transport)); err != nil {
		if isHandleAbsent(err) {
			return 0, nil, fmt.Errorf("%w: no primary at 0x%x: %s",
				ErrPrimaryNotFound, c.config.PrimaryHandle, err)
		}
		return 0, nil, classify("TPM2_ReadPublic", err)
	}

	blob, err := c.SerializeHandle(h)
	if err != nil {
		return 0, nil, err
	}
	return h, blob, nil
}

// CreatePrimary provisions the storage primary key under the owner
// hierarchy and evicts it to the configured persistent handle. The
// fixed storage template makes provisioning idempotent at the template
// level: repeated creation on the same hardware derives a structurally
// equivalent key. The caller must persist the returned handle blob.
func (c *Context) CreatePrimary(ownerAuth *secret.Buffer) (Handle, *secret.Buffer, error) {
	if c.closed {
		return 0, nil, ErrClosed
	}

	c.logger.Debug("tpm: creating storage primary key")

	createRsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(ownerAuth.Bytes()),
		},
		InPublic: tpm2.New2B(tpm2.RSASRKTemplate),
	}.Execute(c.transport)
	if err != nil {
		return 0, nil, classify("TPM2_CreatePrimary", err)
	}
	defer c.flushUntracked(createRsp.ObjectHandle)

	persistent := Handle(c.config.PrimaryHandle)
	_, err = tpm2.EvictControl{
		Auth: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(ownerAuth.Bytes()),
		},
		ObjectHandle: &tpm2.NamedHandle{
			Handle: createRsp.ObjectHandle,
			Name:   createRsp.Name,
		},
		PersistentHandle: tpm2.TPMIDHPersistent(persistent),
	}.Execute(c.transport)
	if err != nil {
		return 0, nil, classify("TPM2_EvictControl", err)
	}

	blob, err := c.SerializeHandle(persistent)
	if err != nil {
		return 0, nil, err
	}

	c.logger.Debugf("tpm: primary key persisted at 0x%x", c.config.PrimaryHandle)
	return persistent, blob, nil
}
