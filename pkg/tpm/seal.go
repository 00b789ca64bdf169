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

// CreateSealObject creates an empty sealed container under the primary,
// keyed by newAuth. Used as a placeholder before the secret material is
// known; SealWithData later fills it by reusing the returned public
// area. The primary is addressed with the empty authorization.
func (c *Context) CreateSealObject(primary Handle, newAuth *secret.Buffer) (*secret.Buffer, *secret.Buffer, error) {
	pub, priv, _, err := c.seal(primary, nil, newAuth, nil, nil, false)
	return pub, priv, err
}

// SealWithData wraps a secret as a sealed object under the parent and
// authorization value. When an existing public blob is supplied the new
// sealed object reuses that public area, otherwise a fresh container
// template is used. The loaded handle is registered with the context.
//
// The authorization value is never stored outside the sealed blob and
// never cached by the context; the caller supplies it on every unseal.
func (c *Context) SealWithData(
	parentAuth *secret.Buffer,
	parent Handle,
	objectAuth *secret.Buffer,
	existingPub *secret.Buffer,
	data *secret.Buffer,
) (*secret.Buffer, *secret.Buffer, Handle, error) {
	return c.seal(parent, parentAuth, objectAuth, existingPub, data, true)
}

func (c *Context) seal(
	parent Handle,
	parentAuth *secret.Buffer,
	objectAuth *secret.Buffer,
	existingPub *secret.Buffer,
	data *secret.Buffer,
	load bool,
) (*secret.Buffer, *secret.Buffer, Handle, error) {
	if c.closed {
		return nil, nil, 0, ErrClosed
	}

	inPublic := tpm2.New2B(sealTemplate(data.IsZero()))
	if existingPub != nil && !existingPub.IsZero() {
		pub, err := unmarshalPublic(existingPub)
		if err != nil {
			return nil, nil, 0, err
		}
		tmpl, err := pub.Contents()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: public area: %s", ErrBlobFormat, err)
		}
		// the hardware requires exactly one sensitive source: caller
		// data or an internal seed
		tmpl.ObjectAttributes.SensitiveDataOrigin = data.IsZero()
		inPublic = tpm2.New2B(*tmpl)
	}

	sensitive := tpm2.TPMSSensitiveCreate{
		UserAuth: tpm2.TPM2BAuth{
			Buffer: objectAuth.Bytes(),
		},
	}
	if !data.IsZero() {
		sensitive.Data = tpm2.NewTPMUSensitiveCreate(
			&tpm2.TPM2BSensitiveData{
				Buffer: data.Bytes(),
			},
		)
	}

	parentName, _, err := c.readHandle(parent)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("parent 0x%x: %w", uint32(parent), err)
	}

	createRsp, err := tpm2.Create{
		ParentHandle: tpm2.AuthHandle{
			Handle: parent,
			Name:   parentName,
			Auth:   c.authSession(parentAuth),
		},
		InPublic:    inPublic,
		InSensitive: tpm2.TPM2BSensitiveCreate{Sensitive: &sensitive},
	}.Execute(c.transport)
	if err != nil {
		return nil, nil, 0, classify("TPM2_Create", err)
	}

	pubBlob := secret.New(tpm2.Marshal(createRsp.OutPublic))
	privBlob := secret.New(tpm2.Marshal(createRsp.OutPrivate))

	if !load {
		return pubBlob, privBlob, 0, nil
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
		pubBlob.Destroy()
		privBlob.Destroy()
		return nil, nil, 0, classify("TPM2_Load", err)
	}

	if err := c.RegisterHandle(loadRsp.ObjectHandle); err != nil {
		c.flushUntracked(loadRsp.ObjectHandle)
		pubBlob.Destroy()
		privBlob.Destroy()
		return nil, nil, 0, err
	}

	c.logger.Debugf("tpm: sealed %d bytes at handle 0x%x", data.Len(), uint32(loadRsp.ObjectHandle))
	return pubBlob, privBlob, loadRsp.ObjectHandle, nil
}

// Unseal recovers the secret sealed in the object. Fails with
// ErrAuthFail when the authorization value is wrong; the secret is
// returned in a fresh buffer owned by the caller.
func (c *Context) Unseal(handle Handle, objectAuth *secret.Buffer) (*secret.Buffer, error) {
	if c.closed {
		return nil, ErrClosed
	}

	name, _, err := c.readHandle(handle)
	if err != nil {
		return nil, err
	}

	rsp, err := tpm2.Unseal{
		ItemHandle: tpm2.AuthHandle{
			Handle: handle,
			Name:   name,
			Auth:   c.authSession(objectAuth),
		},
	}.Execute(c.transport)
	if err != nil {
		return nil, classify("TPM2_Unseal", err)
	}

	out := secret.New(rsp.OutData.Buffer)
	secret.Zero(rsp.OutData.Buffer)
	return out, nil
}
