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
	"github.com/jeremyhahn/go-tpm-token/pkg/secret"
)

// Attributes is the capability and metadata flag set carried by a
// generated object. The token layer derives its PKCS#11 attribute
// template from these; the generator derives the hardware object
// attributes from them.
type Attributes struct {
	// Sign marks the object usable for signing (and its public portion
	// for verification).
	Sign bool

	// Decrypt marks the object usable for decryption (and its public
	// portion for encryption).
	Decrypt bool

	// Extractable permits the sensitive area to be duplicated out of
	// the hardware. Non-extractable objects are fixed to this TPM and
	// parent.
	Extractable bool

	// KeyBits is the requested key size: modulus bits for RSA, curve
	// bits for EC, key bytes*8 for symmetric and generic secrets.
	KeyBits int
}

// ObjectData is a loaded or newly created cryptographic object. The two
// blobs are the durable representation; the handles are ephemeral and
// valid only while the object is resident in the hardware context.
type ObjectData struct {
	// PrivateHandle references the loaded private portion.
	PrivateHandle Handle

	// PublicHandle references a separately loaded public portion for
	// asymmetric objects; zero for pure secrets.
	PublicHandle Handle

	// Attrs records the capability flags the object was created with.
	Attrs Attributes

	// PublicBlob and PrivateBlob are the storable serialized areas.
	// The private blob is opaque ciphertext under the parent's key and
	// immutable once created; authorization rotation produces a new
	// private blob rather than mutating this one.
	PublicBlob  *secret.Buffer
	PrivateBlob *secret.Buffer
}

// Free releases the object's buffers and flushes its handles from the
// context. Intended for shutdown paths: flush failures are logged by
// the context, never fatal.
func (o *ObjectData) Free(c *Context) {
	if o == nil {
		return
	}
	if o.PrivateHandle != 0 {
		if err := c.FlushHandle(o.PrivateHandle); err != nil {
			c.logger.Errorf("tpm: failed to flush private handle: %v", err)
		}
		o.PrivateHandle = 0
	}
	if o.PublicHandle != 0 {
		if err := c.FlushHandle(o.PublicHandle); err != nil {
			c.logger.Errorf("tpm: failed to flush public handle: %v", err)
		}
		o.PublicHandle = 0
	}
	o.PublicBlob.Destroy()
	o.PrivateBlob.Destroy()
}
