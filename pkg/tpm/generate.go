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

// GenerateKey creates a fresh key under the parent for the requested
// key-generation mechanism and capability flags, loads it, and returns
// its live handle together with the storable public and private blobs.
// The public and private attribute sets mirror the two object templates
// of the calling layer; the hardware template is derived from their
// union, with extractability governed by the private set.
//
// All-or-nothing: on success exactly one transient handle is registered
// with the context; on any failure every partially created handle is
// flushed before the error is returned.
func (c *Context) GenerateKey(
	parent Handle,
	parentAuth *secret.Buffer,
	newAuth *secret.Buffer,
	mech Mechanism,
	pubAttrs, privAttrs Attributes,
) (*ObjectData, error) {
	if c.closed {
		return nil, ErrClosed
	}

	attrs := mergeAttributes(pubAttrs, privAttrs)

	entry, err := lookupMechanism(mech, classKeyGen)
	if err != nil {
		return nil, err
	}
	template, err := buildTemplate(mech, entry, attrs)
	if err != nil {
		return nil, err
	}

	parentName, _, err := c.readHandle(parent)
	if err != nil {
		return nil, fmt.Errorf("parent 0x%x: %w", uint32(parent), err)
	}

	c.logger.Debugf("tpm: generating key, mechanism 0x%x, %d bits", uint(mech), attrs.KeyBits)

	createRsp, err := tpm2.Create{
		ParentHandle: tpm2.AuthHandle{
			Handle: parent,
			Name:   parentName,
			Auth:   c.authSession(parentAuth),
		},
		InPublic: tpm2.New2B(template),
		InSensitive: tpm2.TPM2BSensitiveCreate{
			Sensitive: &tpm2.TPMSSensitiveCreate{
				UserAuth: tpm2.TPM2BAuth{
					Buffer: newAuth.Bytes(),
				},
			},
		},
	}.Execute(c.transport)
	if err != nil {
		return nil, classify("TPM2_Create", err)
	}

	loadRsp, err := tpm2.Load{
		ParentHandle: tpm2.AuthHandle{
			Handle: parent,
			Name:   parentName,
			Auth:   c.authSession(parentAuth),
		},
		InPrivate: createRsp.OutPrivate,
		InPublic:  createRsp.OutPublic,
	}.Execute(c.transport)
	if err != nil {
		return nil, classify("TPM2_Load", err)
	}

	if err := c.RegisterHandle(loadRsp.ObjectHandle); err != nil {
		c.flushUntracked(loadRsp.ObjectHandle)
		return nil, err
	}

	c.logger.Debugf("tpm: generated key loaded at handle 0x%x", uint32(loadRsp.ObjectHandle))

	return &ObjectData{
		PrivateHandle: loadRsp.ObjectHandle,
		Attrs:         attrs,
		PublicBlob:    secret.New(tpm2.Marshal(createRsp.OutPublic)),
		PrivateBlob:   secret.New(tpm2.Marshal(createRsp.OutPrivate)),
	}, nil
}

// mergeAttributes folds the public and private object templates into
// the single flag set the hardware template is built from.
func mergeAttributes(pub, priv Attributes) Attributes {
	merged := Attributes{
		Sign:        pub.Sign || priv.Sign,
		Decrypt:     pub.Decrypt || priv.Decrypt,
		Extractable: priv.Extractable,
		KeyBits:     pub.KeyBits,
	}
	if merged.KeyBits == 0 {
		merged.KeyBits = priv.KeyBits
	}
	return merged
}
