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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/go-tpm/tpm2"

	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// Load loads a stored object under its parent and registers the
// resulting transient handle with the context. The public and private
// blobs are the serialized areas produced by GenerateKey, SealWithData
// or ChangeAuth; malformed blobs fail with ErrBlobFormat before any
// hardware command is issued.
func (c *Context) Load(parent Handle, parentAuth *secret.Buffer, pubBlob, privBlob *secret.Buffer) (Handle, error) {
	if c.closed {
		return 0, ErrClosed
	}

	inPublic, err := unmarshalPublic(pubBlob)
	if err != nil {
		return 0, err
	}
	inPrivate, err := unmarshalPrivate(privBlob)
	if err != nil {
		return 0, err
	}

	parentName, _, err := c.readHandle(parent)
	if err != nil {
		return 0, fmt.Errorf("parent 0x%x: %w", uint32(parent), err)
	}

	rsp, err := tpm2.Load{
		ParentHandle: tpm2.AuthHandle{
			Handle: parent,
			Name:   parentName,
			Auth:   c.authSession(parentAuth),
		},
		InPrivate: *inPrivate,
		InPublic:  *inPublic,
	}.Execute(c.transport)
	if err != nil {
		return 0, classify("TPM2_Load", err)
	}

	if err := c.RegisterHandle(rsp.ObjectHandle); err != nil {
		c.flushUntracked(rsp.ObjectHandle)
		return 0, err
	}

	c.logger.Debugf("tpm: loaded object at handle 0x%x", uint32(rsp.ObjectHandle))
	return rsp.ObjectHandle, nil
}

// flushUntracked releases a handle the context never registered, used
// on cleanup paths between a hardware load and a failed registration.
func (c *Context) flushUntracked(h Handle) {
	if _, err := (tpm2.FlushContext{FlushHandle: h}).Execute(c.transport); err != nil {
		c.logger.Errorf("tpm: failed to flush handle 0x%x: %v", uint32(h), err)
	}
}

// handleBlobMagic guards serialized handle blobs against being confused
// with public or private area blobs.
var handleBlobMagic = [4]byte{'T', 'K', 'H', '1'}

// SerializeHandle captures a resident object's handle and cryptographic
// name into a storable blob. The blob is only meaningful for the
// lifetime of the object's residency: it names a handle, not the object
// itself.
func (c *Context) SerializeHandle(h Handle) (*secret.Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}

	name, _, err := c.readHandle(h)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(handleBlobMagic[:])
	if err := binary.Write(&buf, binary.BigEndian, uint32(h)); err != nil {
		return nil, fmt.Errorf("serialize handle: %w", err)
	}
	buf.Write(tpm2.Marshal(name))

	return secret.New(buf.Bytes()), nil
}

// DeserializeHandle resolves a handle blob back to a live handle. The
// object must still be resident and its name must match the one
// captured at serialization time; a stale or tampered blob fails with
// ErrBlobFormat. A transient handle is registered with the context for
// flushing on Close; persistent handles are returned unregistered.
func (c *Context) DeserializeHandle(blob *secret.Buffer) (Handle, error) {
	if c.closed {
		return 0, ErrClosed
	}

	raw := blob.Bytes()
	if len(raw) < len(handleBlobMagic)+4 || !bytes.Equal(raw[:4], handleBlobMagic[:]) {
		return 0, fmt.Errorf("%w: not a handle blob", ErrBlobFormat)
	}
	h := Handle(binary.BigEndian.Uint32(raw[4:8]))

	wantName, err := tpm2.Unmarshal[tpm2.TPM2BName](raw[8:])
	if err != nil {
		return 0, fmt.Errorf("%w: handle name: %s", ErrBlobFormat, err)
	}

	name, _, err := c.readHandle(h)
	if err != nil {
		return 0, fmt.Errorf("handle 0x%x no longer resident: %w", uint32(h), err)
	}
	if !bytes.Equal(name.Buffer, wantName.Buffer) {
		return 0, fmt.Errorf("%w: handle 0x%x now names a different object", ErrBlobFormat, uint32(h))
	}

	// Persistent objects survive context teardown and must never be
	// flushed, so they stay out of the transient handle registry.
	if !isPersistent(h) {
		if err := c.RegisterHandle(h); err != nil {
			return 0, err
		}
	}
	return h, nil
}

// isPersistent reports whether h lies in the persistent object range.
func isPersistent(h Handle) bool {
	return uint32(h) >= 0x81000000 && uint32(h) <= 0x81FFFFFF
}

// unmarshalPublic parses a serialized public area blob. Unmarshal is
// lenient about empty and truncated input, so the parsed area is
// validated as well: a blob that does not carry a readable public area
// never reaches the hardware.
func unmarshalPublic(blob *secret.Buffer) (*tpm2.TPM2BPublic, error) {
	if blob.IsZero() {
		return nil, fmt.Errorf("%w: empty public blob", ErrBlobFormat)
	}
	pub, err := tpm2.Unmarshal[tpm2.TPM2BPublic](blob.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: public blob: %s", ErrBlobFormat, err)
	}
	if _, err := pub.Contents(); err != nil {
		return nil, fmt.Errorf("%w: public blob: %s", ErrBlobFormat, err)
	}
	return pub, nil
}

// unmarshalPrivate parses a serialized private area blob. See
// unmarshalPublic for why the parsed area is validated.
func unmarshalPrivate(blob *secret.Buffer) (*tpm2.TPM2BPrivate, error) {
	if blob.IsZero() {
		return nil, fmt.Errorf("%w: empty private blob", ErrBlobFormat)
	}
	priv, err := tpm2.Unmarshal[tpm2.TPM2BPrivate](blob.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: private blob: %s", ErrBlobFormat, err)
	}
	if len(priv.Buffer) == 0 {
		return nil, fmt.Errorf("%w: empty private area", ErrBlobFormat)
	}
	return priv, nil
}
